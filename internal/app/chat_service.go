package app

import (
	"context"
	"log"
	"strings"

	"sentientos/internal/ai"
	"sentientos/internal/model"
	"sentientos/internal/repository"
	"sentientos/internal/session"
)

const (
	CoreTierName    = "SENTIENT CORE"
	PremiumTierName = "SENTIENT PRO"

	corePrompt    = " You are on Sentient Core."
	premiumPrompt = " You are on Sentient Pro. Use <thinking> tags for reasoning."
)

// SaveOutcome tells a caller what happened to a message write.
type SaveOutcome int

const (
	// Stored means the message was written on the first attempt.
	Stored SaveOutcome = iota
	// Recovered means the conversation row was missing, was recreated and
	// the retried write succeeded.
	Recovered
	// Dropped means the message was not written.
	Dropped
)

func (o SaveOutcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Recovered:
		return "recovered"
	default:
		return "dropped"
	}
}

type TranscriptCache interface {
	GetTranscript(ctx context.Context, chatID string) ([]model.Message, bool, error)
	SetTranscript(ctx context.Context, chatID string, messages []model.Message) error
	DeleteTranscript(ctx context.Context, chatID string) error
	MarkDirty(ctx context.Context, chatID string) error
	IsDirty(ctx context.Context, chatID string) (bool, error)
}

type Options struct {
	AppName string
	Core    ai.ChatConfig
	Premium ai.ChatConfig
	Billing BillingOptions
}

type Tier struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Premium bool   `json:"premium"`
}

type ChatService struct {
	profileRepo      *repository.ProfileRepository
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	transcriptCache  TranscriptCache
	llmClient        ai.Client
	opts             Options
	clock            *clock
}

func NewChatService(
	profileRepo *repository.ProfileRepository,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	transcriptCache TranscriptCache,
	llmClient ai.Client,
	opts Options,
) *ChatService {
	if opts.AppName == "" {
		opts.AppName = "Sentient OS"
	}
	return &ChatService{
		profileRepo:      profileRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		transcriptCache:  transcriptCache,
		llmClient:        llmClient,
		opts:             opts,
		clock:            newClock(),
	}
}

// SyncProfile makes sure a profile row exists for email and returns the
// user with its current tier. A failed premium lookup degrades to core.
func (s *ChatService) SyncProfile(email string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	if err := s.profileRepo.Ensure(email); err != nil {
		log.Printf("sync profile failed: %v", err)
	}
	return &User{Email: email, Premium: s.IsPremium(email)}, nil
}

func (s *ChatService) IsPremium(email string) bool {
	profile, err := s.profileRepo.GetByEmail(email)
	if err != nil {
		log.Printf("premium lookup failed: %v", err)
		return false
	}
	return profile != nil && profile.IsPremium
}

func (s *ChatService) Tier(user *User) Tier {
	if user != nil && user.Premium {
		return Tier{Name: PremiumTierName, Model: s.opts.Premium.Model, Premium: true}
	}
	return Tier{Name: CoreTierName, Model: s.opts.Core.Model}
}

func (s *ChatService) ListConversations(rc *RequestContext) ([]model.Conversation, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	return s.conversationRepo.ListByEmail(email)
}

// EnsureActiveConversation resolves the conversation this request works on:
// the active one if it still exists, else the newest, else a fresh one.
func (s *ChatService) EnsureActiveConversation(ctx context.Context, rc *RequestContext) (*model.Conversation, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}

	activeID := rc.ActiveChatID
	if activeID == "" && rc.Tokens != nil {
		if id, ok, err := rc.Tokens.Get(ctx, session.KeyActiveChat); err == nil && ok {
			activeID = id
		}
	}
	if activeID != "" {
		conversation, err := s.conversationRepo.GetByIDAndEmail(activeID, email)
		if err != nil {
			return nil, err
		}
		if conversation != nil {
			s.focus(ctx, rc, conversation.ChatID)
			return conversation, nil
		}
	}

	conversation, err := s.conversationRepo.LatestByEmail(email)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		if conversation, err = s.createConversation(email); err != nil {
			return nil, err
		}
	}
	s.focus(ctx, rc, conversation.ChatID)
	return conversation, nil
}

func (s *ChatService) NewConversation(ctx context.Context, rc *RequestContext) (*model.Conversation, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	conversation, err := s.createConversation(email)
	if err != nil {
		return nil, err
	}
	s.focus(ctx, rc, conversation.ChatID)
	return conversation, nil
}

func (s *ChatService) SelectConversation(ctx context.Context, rc *RequestContext, chatID string) (*model.Conversation, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	conversation, err := s.conversationRepo.GetByIDAndEmail(chatID, email)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	s.focus(ctx, rc, conversation.ChatID)
	return conversation, nil
}

// DeleteConversation removes an owned conversation. Its messages go with
// it through the foreign key.
func (s *ChatService) DeleteConversation(ctx context.Context, rc *RequestContext, chatID string) error {
	email, err := rc.email()
	if err != nil {
		return err
	}
	conversation, err := s.conversationRepo.GetByIDAndEmail(chatID, email)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}
	if err := s.conversationRepo.DeleteByIDAndEmail(chatID, email); err != nil {
		return err
	}
	if s.transcriptCache != nil {
		_ = s.transcriptCache.DeleteTranscript(ctx, chatID)
	}
	if rc.ActiveChatID == chatID {
		rc.ActiveChatID = ""
		if rc.Tokens != nil {
			_ = rc.Tokens.Remove(ctx, session.KeyActiveChat)
		}
	}
	return nil
}

// Transcript returns the ordered messages of an owned conversation.
func (s *ChatService) Transcript(ctx context.Context, rc *RequestContext, chatID string) ([]model.Message, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	conversation, err := s.conversationRepo.GetByIDAndEmail(chatID, email)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return s.history(ctx, chatID)
}

// Message returns one message if it belongs to a conversation of the caller.
func (s *ChatService) Message(rc *RequestContext, msgID string) (*model.Message, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	message, err := s.messageRepo.GetByID(msgID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, ErrMessageNotFound
	}
	conversation, err := s.conversationRepo.GetByIDAndEmail(message.ChatID, email)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrMessageNotFound
	}
	return message, nil
}

// SubmitTurn records text as a user message, streams the model's answer to
// onChunk and records the full answer. When the stream fails nothing is
// recorded for the assistant and the error wraps ErrInference.
func (s *ChatService) SubmitTurn(
	ctx context.Context,
	rc *RequestContext,
	conversation *model.Conversation,
	text string,
	onChunk func(chunk string) error,
) (*model.Message, error) {
	email, err := rc.email()
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageEmpty
	}

	history, err := s.history(ctx, conversation.ChatID)
	if err != nil {
		return nil, err
	}
	s.saveLogged(ctx, conversation.ChatID, model.RoleUser, text, email)

	prompt := make([]ai.ChatMessage, 0, len(history)+2)
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleSystem, Content: s.systemPrompt(rc.User)})
	for _, m := range history {
		prompt = append(prompt, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleUser, Content: text})

	full, err := s.llmClient.StreamComplete(ctx, s.modelFor(rc.User), prompt, onChunk)
	if err != nil {
		return nil, inferenceError(err)
	}

	assistant, _, err := s.SaveMessage(ctx, conversation.ChatID, model.RoleAssistant, full, email)
	if err != nil {
		log.Printf("save assistant message failed: %v", err)
	}
	return assistant, nil
}

// SaveMessage appends a message. A write rejected for a missing
// conversation is retried once after recreating the conversation for
// ownerEmail; with no ownerEmail the message is dropped.
func (s *ChatService) SaveMessage(ctx context.Context, chatID, role, content, ownerEmail string) (*model.Message, SaveOutcome, error) {
	message := &model.Message{ChatID: chatID, Role: role, Content: content, CreatedAt: s.clock.Now()}
	defer s.invalidate(ctx, chatID)

	err := s.messageRepo.Create(message)
	if err == nil {
		return message, Stored, nil
	}
	if !repository.IsForeignKeyViolation(err) || ownerEmail == "" {
		return nil, Dropped, err
	}

	restored := &model.Conversation{
		ChatID:    chatID,
		Email:     ownerEmail,
		Title:     model.RestoredConversationTitle,
		CreatedAt: s.clock.Now(),
	}
	if err := s.conversationRepo.Create(restored); err != nil {
		return nil, Dropped, err
	}
	message.MsgID = ""
	if err := s.messageRepo.Create(message); err != nil {
		return nil, Dropped, err
	}
	return message, Recovered, nil
}

func (s *ChatService) saveLogged(ctx context.Context, chatID, role, content, ownerEmail string) {
	if _, outcome, err := s.SaveMessage(ctx, chatID, role, content, ownerEmail); err != nil {
		log.Printf("save %s message failed: %v", role, err)
	} else if outcome == Recovered {
		log.Printf("conversation %s restored on %s message", chatID, role)
	}
}

func (s *ChatService) createConversation(email string) (*model.Conversation, error) {
	conversation := &model.Conversation{
		Email:     email,
		Title:     model.DefaultConversationTitle,
		CreatedAt: s.clock.Now(),
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ChatService) focus(ctx context.Context, rc *RequestContext, chatID string) {
	rc.ActiveChatID = chatID
	if rc.Tokens == nil {
		return
	}
	if err := rc.Tokens.Put(ctx, session.KeyActiveChat, chatID); err != nil {
		log.Printf("store active chat failed: %v", err)
	}
}

func (s *ChatService) history(ctx context.Context, chatID string) ([]model.Message, error) {
	if s.transcriptCache != nil {
		dirty, err := s.transcriptCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.transcriptCache.GetTranscript(ctx, chatID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListByChatID(chatID)
	if err != nil {
		return nil, err
	}
	if s.transcriptCache != nil {
		if dirty, dirtyErr := s.transcriptCache.IsDirty(ctx, chatID); dirtyErr == nil && !dirty {
			_ = s.transcriptCache.SetTranscript(ctx, chatID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) invalidate(ctx context.Context, chatID string) {
	if s.transcriptCache == nil {
		return
	}
	_ = s.transcriptCache.MarkDirty(ctx, chatID)
	_ = s.transcriptCache.DeleteTranscript(ctx, chatID)
}

func (s *ChatService) systemPrompt(user *User) string {
	prompt := "You are " + s.opts.AppName + "."
	if user != nil && user.Premium {
		return prompt + premiumPrompt
	}
	return prompt + corePrompt
}

func (s *ChatService) modelFor(user *User) ai.ChatConfig {
	if user != nil && user.Premium {
		return s.opts.Premium
	}
	return s.opts.Core
}
