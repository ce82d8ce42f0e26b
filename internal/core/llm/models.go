package llm

// Model is an entry of the selectable model catalog.
type Model struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	APIIdentifier string `json:"apiIdentifier"`
	Description   string `json:"description"`
}

var Models = []Model{
	{
		ID:            "gpt-4o-mini",
		Label:         "GPT 4o mini",
		APIIdentifier: "gpt-4o-mini",
		Description:   "Small model for fast, lightweight tasks",
	},
	{
		ID:            "gpt-4o",
		Label:         "GPT 4o",
		APIIdentifier: "gpt-4o",
		Description:   "For complex, multi-step tasks",
	},
	{
		ID:            "ministral-3b-latest",
		Label:         "Ministral-3b-latest",
		APIIdentifier: "open-mistral-7b",
		Description:   "Not private: anonymized data sent to Mistral",
	},
	{
		ID:            "gemini-1.5-flash",
		Label:         "Gemini 1.5 Flash",
		APIIdentifier: "gemini-1.5-flash",
		Description:   "Fast multimodal model from Google",
	},
}

const DefaultModelName = "ministral-3b-latest"

// FindModel looks a model up by its catalog id.
func FindModel(id string) (Model, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
