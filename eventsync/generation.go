package eventsync

import (
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
)

const currentDescriptionPrefix = "Revenue - "

// ClassifyGeneration tags an event with the report generation that produced it.
// The current finance report prefixes revenue descriptions with "Revenue - " and
// suffixes external ids with "-{FeeType}"; anything else came from the legacy report.
func ClassifyGeneration(e models.FinancialEvent) models.SourceGeneration {
	if strings.HasPrefix(e.Description, currentDescriptionPrefix) {
		return models.SourceGenerationCurrent
	}
	if feeType := e.FeeTypeValue(); feeType != "" && strings.HasSuffix(e.ExternalId(), "-"+feeType) {
		return models.SourceGenerationCurrent
	}
	return models.SourceGenerationLegacy
}
