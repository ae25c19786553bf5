// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password reset links.
//
// Three notifiers implement auth.Notifier:
//   - LogNotifier writes the link to the log, for local development only
//   - QueueNotifier enqueues an asynq task for the worker to deliver
//   - WebhookNotifier posts the link to a mail relay over HTTP
//
// The Worker consumes queued tasks and hands them to another notifier,
// usually a WebhookNotifier.
package notify
