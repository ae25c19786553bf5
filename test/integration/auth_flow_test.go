// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeeper/internal/auth"
)

// outbox captures reset links in place of a mail transport.
type outbox struct {
	mu    sync.Mutex
	links []string
}

func (o *outbox) SendPasswordReset(_ context.Context, _, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, link)
	return nil
}

func (o *outbox) lastToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	Expect(o.links).NotTo(BeEmpty())
	u, err := url.Parse(o.links[len(o.links)-1])
	Expect(err).NotTo(HaveOccurred())
	return u.Query().Get("token")
}

// drain waits for reset links queued by earlier requests.
func (s *stack) drain() {
	ctx, cancel := context.WithTimeout(env.ctx, 5*time.Second)
	defer cancel()
	Expect(s.reset.Wait(ctx)).To(Succeed())
}

func (s *stack) seed(identity, password string) {
	hash, err := s.hasher.Hash(password)
	Expect(err).NotTo(HaveOccurred())
	cred, err := auth.NewCredential(identity, &hash)
	Expect(err).NotTo(HaveOccurred())
	Expect(s.credentials.Create(env.ctx, cred)).To(Succeed())
}

// client returns an HTTP client with its own cookie jar.
func (s *stack) client() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar}
}

func (s *stack) post(c *http.Client, path string, body any) *http.Response {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	resp, err := c.Post(s.server.URL+path, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

func (s *stack) get(c *http.Client, path string) *http.Response {
	resp, err := c.Get(s.server.URL + path)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

var _ = Describe("Gatekeeper HTTP API", func() {
	const (
		identity = "ada@example.com"
		password = "analytical engine"
	)

	var s *stack

	BeforeEach(func() {
		env.reset()
		s = env.newStack()
		s.seed(identity, password)
	})

	Describe("login and sessions", func() {
		It("issues a session cookie that authenticates until logout", func() {
			c := s.client()

			resp := s.post(c, "/auth/login", map[string]string{"identity": identity, "secret": password})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("X-RateLimit-Limit")).To(Equal("5"))
			Expect(resp.Header.Get("X-RateLimit-Remaining")).To(Equal("4"))

			resp = s.get(c, "/auth/session")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body struct {
				Identity string `json:"identity"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Identity).To(Equal(identity))

			Expect(s.post(c, "/auth/logout", map[string]string{}).StatusCode).To(Equal(http.StatusOK))
			Expect(s.get(c, "/auth/session").StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("answers unknown identities and wrong passwords identically", func() {
			c := s.client()
			wrong := s.post(c, "/auth/login", map[string]string{"identity": identity, "secret": "nope nope"})
			unknown := s.post(c, "/auth/login", map[string]string{"identity": "nobody@example.com", "secret": password})

			Expect(wrong.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(unknown.StatusCode).To(Equal(http.StatusUnauthorized))

			var a, b map[string]any
			Expect(json.NewDecoder(wrong.Body).Decode(&a)).To(Succeed())
			Expect(json.NewDecoder(unknown.Body).Decode(&b)).To(Succeed())
			Expect(a).To(Equal(b))
		})

		It("throttles the sixth attempt in a window", func() {
			c := s.client()
			for range auth.DefaultMaxAttempts {
				resp := s.post(c, "/auth/login", map[string]string{"identity": identity, "secret": "wrong guess"})
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			}

			resp := s.post(c, "/auth/login", map[string]string{"identity": identity, "secret": password})
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(resp.Header.Get("Retry-After")).NotTo(BeEmpty())
			Expect(resp.Header.Get("X-RateLimit-Remaining")).To(Equal("0"))
		})
	})

	Describe("password reset", func() {
		It("replaces the password and revokes existing sessions", func() {
			old := s.client()
			Expect(s.post(old, "/auth/login", map[string]string{"identity": identity, "secret": password}).StatusCode).
				To(Equal(http.StatusOK))

			anon := s.client()
			Expect(s.post(anon, "/auth/forgot-password", map[string]string{"identity": identity}).StatusCode).
				To(Equal(http.StatusOK))
			s.drain()
			token := s.outbox.lastToken()

			resp := s.post(anon, "/auth/reset-password", map[string]string{"token": token, "secret": "difference engine"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(s.get(old, "/auth/session").StatusCode).To(Equal(http.StatusUnauthorized))

			fresh := s.client()
			Expect(s.post(fresh, "/auth/login", map[string]string{"identity": identity, "secret": password}).StatusCode).
				To(Equal(http.StatusUnauthorized))
			Expect(s.post(fresh, "/auth/login", map[string]string{"identity": identity, "secret": "difference engine"}).StatusCode).
				To(Equal(http.StatusOK))

			// Single use.
			resp = s.post(anon, "/auth/reset-password", map[string]string{"token": token, "secret": "third password"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("does not reveal whether an account exists", func() {
			c := s.client()
			resp := s.post(c, "/auth/forgot-password", map[string]string{"identity": "nobody@example.com"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			s.drain()
			Expect(s.outbox.links).To(BeEmpty())
		})

		It("lets exactly one concurrent confirmation win", func() {
			c := s.client()
			Expect(s.post(c, "/auth/forgot-password", map[string]string{"identity": identity}).StatusCode).
				To(Equal(http.StatusOK))
			s.drain()
			token := s.outbox.lastToken()

			const workers = 6
			var (
				wg  sync.WaitGroup
				oks atomic.Int32
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					data, _ := json.Marshal(map[string]string{"token": token, "secret": "racing password"})
					resp, err := http.Post(s.server.URL+"/auth/reset-password", "application/json", bytes.NewReader(data))
					Expect(err).NotTo(HaveOccurred())
					defer resp.Body.Close()
					if resp.StatusCode == http.StatusOK {
						oks.Add(1)
					}
				}()
			}
			wg.Wait()
			Expect(oks.Load()).To(Equal(int32(1)))
		})
	})
})
