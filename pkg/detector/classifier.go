package detector

import (
	"context"

	"github.com/codeready-toolchain/incidentbot/pkg/config"
	"github.com/codeready-toolchain/incidentbot/pkg/logstream"
)

// Judgment is a classification lane's verdict for a service's current
// window: a severity band, an optional root cause and recommended
// action, and a confidence the detector carries into the incident record.
type Judgment struct {
	Severity          config.Severity
	RootCause         string
	RecommendedAction config.RecommendedAction
	Confidence        float64
	Reasoning         string
}

// Classifier is the LLM lane's batched judgment call, kept as an
// interface so the detector does not depend on any particular model
// provider.
type Classifier interface {
	Classify(ctx context.Context, serviceID string, window []logstream.LogEvent) (Judgment, error)
}
