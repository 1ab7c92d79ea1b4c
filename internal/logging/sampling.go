package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore bounds volume below Error. Error and above bypass the
// sampler entirely; Debug through Warn go through one windowed sampler
// with the configured tick/initial/thereafter.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	errors := &boundedCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}
	chatty := &boundedCore{Core: core, min: zapcore.DebugLevel, max: zapcore.WarnLevel}

	sampled := zapcore.NewSamplerWithOptions(
		chatty,
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)

	return zapcore.NewTee(errors, sampled)
}

// boundedCore admits only entries within [min, max]. Bounds are explicit
// rather than zero-sentinel so Info (level 0) can sit on either side.
type boundedCore struct {
	zapcore.Core
	min zapcore.Level
	max zapcore.Level
}

func (c *boundedCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *boundedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *boundedCore) With(fields []zapcore.Field) zapcore.Core {
	return &boundedCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
