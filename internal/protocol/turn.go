package protocol

// Role tags who produced a turn. System turns are synthesized by the context
// assembler only; they never arrive from a client.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is the unit exchanged with the completion service.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func UserTurn(text string) Turn      { return Turn{Role: RoleUser, Text: text} }
func AssistantTurn(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }
func SystemTurn(text string) Turn    { return Turn{Role: RoleSystem, Text: text} }
