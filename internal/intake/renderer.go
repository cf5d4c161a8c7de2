package intake

import "github.com/BTreeMap/PsychIntake/internal/models"

// Renderer receives transcript changes as they happen. Calls are made
// outside the session lock, in transcript order, from the goroutine that
// caused the change.
type Renderer interface {
	// TurnStarted is called for every new turn, including turns that are
	// complete on arrival.
	TurnStarted(msg models.ChatMessage)
	// TurnUpdated is called after fragment was appended to msg.
	TurnUpdated(msg models.ChatMessage, fragment string)
	// TurnFinalized is called once per turn with its final content.
	TurnFinalized(msg models.ChatMessage)
	// Reset is called when the whole transcript is replaced.
	Reset(msgs []models.ChatMessage)
}

// NopRenderer ignores every call.
type NopRenderer struct{}

func (NopRenderer) TurnStarted(models.ChatMessage) {}
func (NopRenderer) TurnUpdated(models.ChatMessage, string) {}
func (NopRenderer) TurnFinalized(models.ChatMessage) {}
func (NopRenderer) Reset([]models.ChatMessage) {}
