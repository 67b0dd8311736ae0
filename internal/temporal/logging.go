package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LogAdapter routes Temporal SDK logs into zerolog.
type LogAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*LogAdapter)(nil)
	_ log.WithLogger = (*LogAdapter)(nil)
)

func NewLogAdapter(logger zerolog.Logger) *LogAdapter {
	return &LogAdapter{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

// fields copies SDK keyvals onto the event. A trailing key gets MISSING_VALUE
// and a non-string key becomes INVALID_KEY.
func fields(ctx zerolog.Context, keyvals []interface{}) zerolog.Context {
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		if i+1 >= len(keyvals) {
			ctx = ctx.Str(key, "MISSING_VALUE")
			break
		}
		if err, ok := keyvals[i+1].(error); ok {
			ctx = ctx.AnErr(key, err)
			continue
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return ctx
}

func (a *LogAdapter) Debug(msg string, keyvals ...interface{}) {
	a.with(keyvals).Debug().Msg(msg)
}

func (a *LogAdapter) Info(msg string, keyvals ...interface{}) {
	a.with(keyvals).Info().Msg(msg)
}

func (a *LogAdapter) Warn(msg string, keyvals ...interface{}) {
	a.with(keyvals).Warn().Msg(msg)
}

func (a *LogAdapter) Error(msg string, keyvals ...interface{}) {
	a.with(keyvals).Error().Msg(msg)
}

// With returns an adapter that adds keyvals to every line.
func (a *LogAdapter) With(keyvals ...interface{}) log.Logger {
	l := a.with(keyvals)
	return &LogAdapter{logger: *l}
}

func (a *LogAdapter) with(keyvals []interface{}) *zerolog.Logger {
	if len(keyvals) == 0 {
		return &a.logger
	}
	l := fields(a.logger.With(), keyvals).Logger()
	return &l
}
