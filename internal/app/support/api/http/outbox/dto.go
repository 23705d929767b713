package outbox

import domain "posclient/internal/domain/outbox"

type ListInput struct {
	Status   []string `query:"status" doc:"Comma-separated statuses: pending, failed, synced"`
	Conflict bool     `query:"conflict" doc:"Only entries rejected as duplicates"`
}

type ListOutput struct {
	Body ListResponse
}

type ListResponse struct {
	Entries []domain.Entry `json:"entries"`
	Count   int            `json:"count"`
}
