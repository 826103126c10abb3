package app

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sentientos/internal/ai"
	"sentientos/internal/model"
	"sentientos/internal/pkg/pdfextract"
)

const (
	MaxUploadBytes = 10 << 20

	unreadableUpload = "Error reading file."
)

var uploadExtensions = map[string]bool{
	".txt": true,
	".py":  true,
	".js":  true,
	".pdf": true,
}

type Upload struct {
	Name string
	Data []byte
}

// AllowedUpload reports whether name has an accepted extension.
func AllowedUpload(name string) bool {
	return uploadExtensions[strings.ToLower(filepath.Ext(name))]
}

// ExtractUpload returns the text of an upload. Unreadable content yields
// a fixed notice instead of an error so the analysis still runs.
func ExtractUpload(u Upload) string {
	if strings.ToLower(filepath.Ext(u.Name)) == ".pdf" {
		text, err := pdfextract.ExtractText(bytes.NewReader(u.Data))
		if err != nil {
			log.Printf("extract pdf %q failed: %v", u.Name, err)
			return unreadableUpload
		}
		return text
	}
	if !utf8.Valid(u.Data) {
		return unreadableUpload
	}
	return string(u.Data)
}

// IngestUpload asks the model for a one-shot analysis of the file and, when
// that succeeds, renames the conversation after the file and records the
// upload notice and the analysis. A failed analysis records nothing.
func (s *ChatService) IngestUpload(
	ctx context.Context,
	rc *RequestContext,
	conversation *model.Conversation,
	file Upload,
) ([]model.Message, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	name := filepath.Base(strings.TrimSpace(file.Name))
	if name == "" || name == "." || !AllowedUpload(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedUpload, file.Name)
	}
	if len(file.Data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrUnsupportedUpload, name, MaxUploadBytes)
	}
	file.Name = name

	prompt := []ai.ChatMessage{
		{Role: model.RoleSystem, Content: "You are " + s.opts.AppName + "."},
		{Role: model.RoleUser, Content: "Analyze this file:\n" + ExtractUpload(file)},
	}
	analysis, err := s.llmClient.Complete(ctx, s.modelFor(rc.User), prompt)
	if err != nil {
		return nil, inferenceError(err)
	}

	title := "File: " + name
	if err := s.conversationRepo.UpdateTitle(conversation.ChatID, title); err != nil {
		log.Printf("rename conversation failed: %v", err)
	} else {
		conversation.Title = title
	}

	var saved []model.Message
	for _, m := range []struct{ role, content string }{
		{model.RoleUser, "Uploaded: " + name},
		{model.RoleAssistant, analysis},
	} {
		message, _, err := s.SaveMessage(ctx, conversation.ChatID, m.role, m.content, email)
		if err != nil {
			log.Printf("save %s message failed: %v", m.role, err)
			continue
		}
		saved = append(saved, *message)
	}
	return saved, nil
}
