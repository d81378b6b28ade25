package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// AliveChecker reports whether the worker that raised requestID is still
// alive, distinguishing the ask_user flow's warm path (answer the worker
// directly) from its cold path (the worker already exited; the answer must
// be replayed as a fresh message on the next turn).
type AliveChecker interface {
	IsAlive(workspaceFolder string) bool
}

// RequestQuestion persists a PendingQuestion, asks the owning channel to
// render it, and records the returned message id for later reference
// (e.g. editing the question bubble once answered).
func (m *Manager) RequestQuestion(ctx context.Context, requestID, workspaceFolder, chatID, channelName, sessionToken string, questions []domain.QuestionSpec) error {
	f, err := m.fabric(workspaceFolder)
	if err != nil {
		return err
	}

	rec := domain.PendingQuestionRecord{
		RequestID:       requestID,
		SourceWorkspace: workspaceFolder,
		ChatID:          chatID,
		ChannelName:     channelName,
		SessionToken:    sessionToken,
		Questions:       questions,
	}

	if m.notifier != nil {
		messageID, err := m.notifier.AskUser(ctx, workspaceFolder, chatID, channelName, requestID, questions)
		if err != nil {
			return fmt.Errorf("approval: ask_user notify: %w", err)
		}
		rec.MessageID = messageID
	}

	return fsatomic.WriteJSON(m.pendingQuestionFile(workspaceFolder, requestID), rec)
}

// AnswerQuestion resolves a pending question. On the warm path (worker
// still alive) it writes the IPC response the worker is polling for. On the
// cold path it returns the record so the caller can format the Q&A as
// context and re-enqueue it as a normal user message.
//
// In both cases the pending record is deleted before returning.
func (m *Manager) AnswerQuestion(alive AliveChecker, workspaceFolder, requestID string, answers map[string]string) (rec *domain.PendingQuestionRecord, warm bool, err error) {
	f, err := m.fabric(workspaceFolder)
	if err != nil {
		return nil, false, err
	}

	var got domain.PendingQuestionRecord
	path := m.pendingQuestionFile(workspaceFolder, requestID)
	if err := fsatomic.ReadJSON(path, &got); err != nil {
		return nil, false, err
	}
	defer os.Remove(path)

	if alive != nil && alive.IsAlive(workspaceFolder) {
		if err := f.WriteResponse(requestID, protocol.TaskResponse{Result: answers}); err != nil {
			return nil, false, err
		}
		return &got, true, nil
	}
	return &got, false, nil
}

// FormatColdContext renders the cold-path continuation paragraph: "You
// previously asked X ... Options ... The user answered Y ... Continue."
func FormatColdContext(rec domain.PendingQuestionRecord, answers map[string]string) string {
	var b strings.Builder
	b.WriteString("You previously asked: ")
	for i, q := range rec.Questions {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(q.Text)
		if len(q.Options) > 0 {
			b.WriteString(" Options: ")
			b.WriteString(strings.Join(q.Options, ", "))
			b.WriteString(".")
		}
	}
	b.WriteString(" The user answered: ")
	first := true
	for k, v := range answers {
		if !first {
			b.WriteString("; ")
		}
		first = false
		if k != "" && k != "answer" {
			fmt.Fprintf(&b, "%s: %s", k, v)
		} else {
			b.WriteString(v)
		}
	}
	b.WriteString(". Continue.")
	return b.String()
}

func (m *Manager) pendingQuestionFile(workspaceFolder, requestID string) string {
	f, _ := m.fabric(workspaceFolder)
	if f == nil {
		return ""
	}
	// Pending questions share the pending_approvals directory's sibling
	// naming scheme but their own file, keyed by request id, so the two
	// state machines never collide on disk.
	return filepath.Join(f.Paths.Root(), "pending_questions", requestID+".json")
}
