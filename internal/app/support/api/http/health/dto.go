package health

import "time"

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Status   string     `json:"status" example:"OK" doc:"Health status of the client"`
	Syncing  bool       `json:"syncing" doc:"A snapshot sync is running"`
	LastSync *time.Time `json:"last_sync,omitempty" doc:"End of the last successful sync"`
}
