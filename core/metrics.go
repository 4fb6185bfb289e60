package core

import "context"

// NopMetricsRecorder discards every pipeline and delivery counter. It is
// the default recorder so components never nil-check before recording.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
