package llm

// Schema is the subset of the OpenAPI schema object accepted as a response schema.
type Schema struct {
	Type             string             `json:"type"`
	Items            *Schema            `json:"items,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Required         []string           `json:"required,omitempty"`
}

const (
	TypeArray  = "ARRAY"
	TypeObject = "OBJECT"
	TypeString = "STRING"
)

// CommentarySchema constrains output to an array of variance records.
func CommentarySchema() *Schema {
	fields := []string{"kpi", "drivers", "comparison", "impact"}
	return &Schema{
		Type: TypeArray,
		Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"kpi":        {Type: TypeString},
				"drivers":    {Type: TypeArray, Items: &Schema{Type: TypeString}},
				"comparison": {Type: TypeString},
				"impact":     {Type: TypeString},
			},
			PropertyOrdering: fields,
			Required:         fields,
		},
	}
}
