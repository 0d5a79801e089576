// Package log provides Zaku's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context, backed by go.uber.org/zap rather than a
// hand-rolled handler, so call sites never import zap directly.
//
// Quick start
//
//	l := log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormat(log.FormatText))
//	l = l.With(log.Component("server"), log.Str("queue", "default"))
//	l.Info("server started", log.Int("port", 9000))
package log
