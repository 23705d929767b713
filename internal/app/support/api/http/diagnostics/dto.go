package diagnostics

import "posclient/internal/domain/snapshot"

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Sections []snapshot.SectionDiagnostics `json:"sections" doc:"Latest fetch and persist state per section, in persist order"`
}
