package models

type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ContextWindow string `json:"context_window"`
	Reasoning     bool   `json:"reasoning"`
}
