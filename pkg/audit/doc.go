// Package audit records registry mutations.
//
// Every register and unregister step performed through a Registry configured
// with an audit Logger produces one Event, whether it succeeded or not.
// Events can go to a rotating JSON lines file (FileLogger), to the
// application log (LogrusLogger), or to several destinations (MultiLogger).
//
//	logger, err := audit.NewFileLogger(audit.DefaultFileLoggerConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	registry := dependencies.NewRegistry(store, dependencies.WithAuditLogger(logger))
//
// Read-only checks are not audited.
package audit
