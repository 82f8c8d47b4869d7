package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/citypulse/backend/internal/images"
	"github.com/citypulse/backend/internal/models"
	"github.com/citypulse/backend/internal/utils"
)

// MockAnalyzer derives a stable verdict from the description so local
// development works without vendor credentials.
type MockAnalyzer struct{}

func (MockAnalyzer) Analyze(ctx context.Context, description string, files []images.Upload) (models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}
	h := utils.Hash64(description)

	score := float64(h % 101)
	priority := models.Priorities[0]
	switch {
	case score >= 70:
		priority = models.Priorities[2]
	case score >= 40:
		priority = models.Priorities[1]
	}

	analysis := models.Analysis{
		Classification: models.Classifications[int(h/7)%len(models.Classifications)],
		Severity:       models.Severities[int(h/13)%len(models.Severities)],
		Priority:       priority,
		PriorityScore:  &score,
	}
	if len(files) == 0 && len(description) < 20 {
		analysis.NeedsClarification = true
		analysis.Clarification = "Could you describe the issue in more detail or attach a photo?"
	}

	return models.AnalysisResult{
		ThreadID:     fmt.Sprintf("mock-%016x-%d", h, time.Now().UnixNano()),
		CreationTime: time.Now().UTC(),
		Analysis:     analysis,
	}, nil
}
