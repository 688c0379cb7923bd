// Package logging provides structured, context-aware logging for convrag.
//
// The Logger wraps zap and pulls correlation fields (trace, conversation,
// corpus and request IDs) out of the context on every call:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithConversationID(ctx, "conv-42")
//	logger.Info(ctx, "turn routed", zap.String("route", "retrieve"))
//
// Components that only need a plain *zap.Logger receive logger.Underlying().
//
// Output goes to stdout (json or console) and optionally to an OpenTelemetry
// LoggerProvider via the otelzap bridge. Sensitive keys such as api_key are
// redacted by the encoder before they reach stdout.
package logging
