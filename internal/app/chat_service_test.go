package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sentientos/internal/ai"
	"sentientos/internal/model"
	"sentientos/internal/platform/database"
	"sentientos/internal/repository"
	"sentientos/internal/session"
)

type fakeLLM struct {
	deltas      []string
	failAfter   int
	completion  string
	completeErr error
	prompts     [][]ai.ChatMessage
	models      []string
}

func (f *fakeLLM) Complete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	f.prompts = append(f.prompts, messages)
	f.models = append(f.models, cfg.Model)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completion, nil
}

func (f *fakeLLM) StreamComplete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	f.prompts = append(f.prompts, messages)
	f.models = append(f.models, cfg.Model)
	var full strings.Builder
	for i, d := range f.deltas {
		if f.failAfter > 0 && i == f.failAfter {
			return "", errors.New("connection reset")
		}
		full.WriteString(d)
		if err := onChunk(d); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

type fixture struct {
	svc           *ChatService
	llm           *fakeLLM
	profiles      *repository.ProfileRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.OpenTest(t)
	f := &fixture{
		llm:           &fakeLLM{deltas: []string{"Hi", " there"}, completion: "Looks fine."},
		profiles:      repository.NewProfileRepository(db),
		conversations: repository.NewConversationRepository(db),
		messages:      repository.NewMessageRepository(db),
	}
	f.svc = NewChatService(f.profiles, f.conversations, f.messages, nil, f.llm, Options{
		Core:    ai.ChatConfig{Model: "llama-3.1-8b-instant"},
		Premium: ai.ChatConfig{Model: "llama-3.3-70b-versatile"},
		Billing: BillingOptions{Recipient: "pay@example.com"},
	})
	return f
}

func newRequest(email string, premium bool, holder session.Holder) *RequestContext {
	return &RequestContext{User: &User{Email: email, Premium: premium}, Tokens: holder}
}

func noop(string) error { return nil }

func TestEnsureActiveConversationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := session.NewMemoryStore().Scope("browser-1")

	rc := newRequest("ops@example.com", false, holder)
	first, err := f.svc.EnsureActiveConversation(ctx, rc)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if first.Title != model.DefaultConversationTitle {
		t.Fatalf("unexpected title %q", first.Title)
	}
	second, err := f.svc.EnsureActiveConversation(ctx, rc)
	if err != nil || second.ChatID != first.ChatID {
		t.Fatalf("expected same conversation, got %v err=%v", second, err)
	}

	// A later request from the same browser resolves to it as well.
	third, err := f.svc.EnsureActiveConversation(ctx, newRequest("ops@example.com", false, holder))
	if err != nil || third.ChatID != first.ChatID {
		t.Fatalf("expected same conversation on next request, got %v err=%v", third, err)
	}

	list, _ := f.svc.ListConversations(rc)
	if len(list) != 1 {
		t.Fatalf("expected exactly one conversation, got %d", len(list))
	}
}

func TestEnsureActiveConversationPrefersSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)

	older, _ := f.svc.NewConversation(ctx, rc)
	newer, _ := f.svc.NewConversation(ctx, rc)

	rc = newRequest("ops@example.com", false, nil)
	got, err := f.svc.EnsureActiveConversation(ctx, rc)
	if err != nil || got.ChatID != newer.ChatID {
		t.Fatalf("expected newest conversation, got %v err=%v", got, err)
	}

	if _, err := f.svc.SelectConversation(ctx, rc, older.ChatID); err != nil {
		t.Fatal(err)
	}
	got, _ = f.svc.EnsureActiveConversation(ctx, rc)
	if got.ChatID != older.ChatID {
		t.Fatalf("expected selected conversation, got %s", got.ChatID)
	}

	if _, err := f.svc.SelectConversation(ctx, newRequest("intruder@example.com", false, nil), older.ChatID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
}

func TestSubmitTurnRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	var chunks []string
	reply, err := f.svc.SubmitTurn(ctx, rc, conversation, "  hello  ", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if reply == nil || reply.Content != "Hi there" || reply.Role != model.RoleAssistant {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if strings.Join(chunks, "") != "Hi there" {
		t.Fatalf("chunks not forwarded: %v", chunks)
	}

	transcript, err := f.svc.Transcript(ctx, rc, conversation.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}
	if transcript[0].Role != model.RoleUser || transcript[0].Content != "hello" {
		t.Fatalf("user message not preserved: %+v", transcript[0])
	}
	if transcript[1].Role != model.RoleAssistant {
		t.Fatalf("assistant message not preserved: %+v", transcript[1])
	}

	// The next turn sends the stored transcript before the new text.
	if _, err := f.svc.SubmitTurn(ctx, rc, conversation, "again", noop); err != nil {
		t.Fatal(err)
	}
	prompt := f.llm.prompts[1]
	if len(prompt) != 4 || prompt[1].Content != "hello" || prompt[2].Content != "Hi there" || prompt[3].Content != "again" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
}

func TestSubmitTurnRejectsEmptyText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	if _, err := f.svc.SubmitTurn(ctx, rc, conversation, "   ", noop); !errors.Is(err, ErrMessageEmpty) {
		t.Fatalf("expected empty message error, got %v", err)
	}
	if _, err := f.svc.SubmitTurn(ctx, &RequestContext{}, conversation, "hi", noop); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSystemPromptDependsOnTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	premium := newRequest("pro@example.com", true, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, premium)
	if _, err := f.svc.SubmitTurn(ctx, premium, conversation, "hello", noop); err != nil {
		t.Fatal(err)
	}
	core := newRequest("core@example.com", false, nil)
	conversation, _ = f.svc.EnsureActiveConversation(ctx, core)
	if _, err := f.svc.SubmitTurn(ctx, core, conversation, "hello", noop); err != nil {
		t.Fatal(err)
	}

	proSystem := f.llm.prompts[0][0]
	if proSystem.Role != model.RoleSystem ||
		proSystem.Content != "You are Sentient OS. You are on Sentient Pro. Use <thinking> tags for reasoning." {
		t.Fatalf("unexpected premium system prompt %+v", proSystem)
	}
	coreSystem := f.llm.prompts[1][0]
	if strings.Contains(coreSystem.Content, "<thinking>") || coreSystem.Content != "You are Sentient OS. You are on Sentient Core." {
		t.Fatalf("unexpected core system prompt %+v", coreSystem)
	}
	if f.llm.models[0] != "llama-3.3-70b-versatile" || f.llm.models[1] != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected models %v", f.llm.models)
	}
}

func TestSubmitTurnStreamFailureKeepsNoAssistantMessage(t *testing.T) {
	f := newFixture(t)
	f.llm.deltas = []string{"Hel", "lo"}
	f.llm.failAfter = 1
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	var seen string
	reply, err := f.svc.SubmitTurn(ctx, rc, conversation, "hello", func(c string) error {
		seen += c
		return nil
	})
	if !errors.Is(err, ErrInference) || reply != nil {
		t.Fatalf("expected inference error, got %v %v", reply, err)
	}
	if seen != "Hel" {
		t.Fatalf("expected partial output streamed, got %q", seen)
	}

	transcript, _ := f.svc.Transcript(ctx, rc, conversation.ChatID)
	if len(transcript) != 1 || transcript[0].Role != model.RoleUser {
		t.Fatalf("expected only the user message, got %+v", transcript)
	}
}

func TestSaveMessageRestoresMissingConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	message, outcome, err := f.svc.SaveMessage(ctx, "0b6c1f5e-7a7e-4c55-9b44-3f0c2f1f4c11", model.RoleUser, "hi", "ops@example.com")
	if err != nil || outcome != Recovered {
		t.Fatalf("expected recovered save, got %v err=%v", outcome, err)
	}
	restored, _ := f.conversations.GetByIDAndEmail(message.ChatID, "ops@example.com")
	if restored == nil || restored.Title != model.RestoredConversationTitle {
		t.Fatalf("expected restored conversation, got %+v", restored)
	}
	list, _ := f.conversations.ListByEmail("ops@example.com")
	count, _ := f.messages.CountByChatID(message.ChatID)
	if len(list) != 1 || count != 1 {
		t.Fatalf("expected one conversation and one message, got %d and %d", len(list), count)
	}
}

func TestSaveMessageWithoutOwnerIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	message, outcome, err := f.svc.SaveMessage(ctx, "missing-chat", model.RoleUser, "hi", "")
	if err == nil || outcome != Dropped || message != nil {
		t.Fatalf("expected dropped message, got %v %v %v", message, outcome, err)
	}
	if !repository.IsForeignKeyViolation(err) {
		t.Fatalf("expected foreign key error, got %v", err)
	}
	count, _ := f.messages.CountByChatID("missing-chat")
	if count != 0 {
		t.Fatalf("no message may be stored, got %d", count)
	}
	if outcome.String() != "dropped" || Recovered.String() != "recovered" || Stored.String() != "stored" {
		t.Fatalf("unexpected outcome names")
	}
}

func TestIngestUploadRecordsTwoMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	saved, err := f.svc.IngestUpload(ctx, rc, conversation, Upload{Name: "notes.txt", Data: []byte("abc")})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(saved) != 2 || saved[0].Role != model.RoleUser || saved[1].Role != model.RoleAssistant {
		t.Fatalf("expected user and assistant messages, got %+v", saved)
	}
	if saved[0].Content != "Uploaded: notes.txt" || saved[1].Content != "Looks fine." {
		t.Fatalf("unexpected contents %+v", saved)
	}
	if f.llm.prompts[0][1].Content != "Analyze this file:\nabc" {
		t.Fatalf("unexpected analysis prompt %q", f.llm.prompts[0][1].Content)
	}

	stored, _ := f.conversations.GetByIDAndEmail(conversation.ChatID, "ops@example.com")
	if !strings.Contains(stored.Title, "notes.txt") {
		t.Fatalf("conversation not renamed: %q", stored.Title)
	}
	count, _ := f.messages.CountByChatID(conversation.ChatID)
	if count != 2 {
		t.Fatalf("expected exactly two messages, got %d", count)
	}
}

func TestIngestUploadInferenceFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	f.llm.completeErr = errors.New("rate limited")
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	_, err := f.svc.IngestUpload(ctx, rc, conversation, Upload{Name: "notes.txt", Data: []byte("abc")})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
	count, _ := f.messages.CountByChatID(conversation.ChatID)
	stored, _ := f.conversations.GetByIDAndEmail(conversation.ChatID, "ops@example.com")
	if count != 0 || stored.Title != model.DefaultConversationTitle {
		t.Fatalf("failed upload changed state: count=%d title=%q", count, stored.Title)
	}
}

func TestIngestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)

	if _, err := f.svc.IngestUpload(ctx, rc, conversation, Upload{Name: "tool.exe", Data: []byte("x")}); !errors.Is(err, ErrUnsupportedUpload) {
		t.Fatalf("expected unsupported upload, got %v", err)
	}
	big := Upload{Name: "big.txt", Data: make([]byte, MaxUploadBytes+1)}
	if _, err := f.svc.IngestUpload(ctx, rc, conversation, big); !errors.Is(err, ErrUnsupportedUpload) {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if len(f.llm.prompts) != 0 {
		t.Fatalf("rejected uploads must not reach the model")
	}
}

func TestExtractUploadFallsBackOnUnreadableContent(t *testing.T) {
	if got := ExtractUpload(Upload{Name: "broken.pdf", Data: []byte("not a pdf")}); got != "Error reading file." {
		t.Fatalf("unexpected pdf fallback %q", got)
	}
	if got := ExtractUpload(Upload{Name: "bin.txt", Data: []byte{0xff, 0xfe, 0xfd}}); got != "Error reading file." {
		t.Fatalf("unexpected binary fallback %q", got)
	}
	if got := ExtractUpload(Upload{Name: "main.py", Data: []byte("print(1)")}); got != "print(1)" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := session.NewMemoryStore().Scope("browser-1")
	rc := newRequest("ops@example.com", false, holder)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)
	if _, err := f.svc.SubmitTurn(ctx, rc, conversation, "hello", noop); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteConversation(ctx, newRequest("intruder@example.com", false, nil), conversation.ChatID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	if err := f.svc.DeleteConversation(ctx, rc, conversation.ChatID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	count, _ := f.messages.CountByChatID(conversation.ChatID)
	if count != 0 {
		t.Fatalf("messages must cascade, %d left", count)
	}
	if rc.ActiveChatID != "" {
		t.Fatalf("active selection must be cleared")
	}
	if _, ok, _ := holder.Get(ctx, session.KeyActiveChat); ok {
		t.Fatalf("held selection must be cleared")
	}

	next, _ := f.svc.EnsureActiveConversation(ctx, rc)
	if next.ChatID == conversation.ChatID {
		t.Fatalf("deleted conversation must not come back")
	}
}

func TestMessageOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := newRequest("ops@example.com", false, nil)
	conversation, _ := f.svc.EnsureActiveConversation(ctx, rc)
	reply, _ := f.svc.SubmitTurn(ctx, rc, conversation, "hello", noop)

	got, err := f.svc.Message(rc, reply.MsgID)
	if err != nil || got.Content != "Hi there" {
		t.Fatalf("unexpected message %+v err=%v", got, err)
	}
	if _, err := f.svc.Message(newRequest("intruder@example.com", false, nil), reply.MsgID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
}

func TestSyncProfileAndTier(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.SyncProfile("ops@example.com")
	if err != nil || user.Premium {
		t.Fatalf("new profile must be core, got %+v err=%v", user, err)
	}
	if tier := f.svc.Tier(user); tier.Name != CoreTierName || tier.Model != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected tier %+v", tier)
	}

	if err := f.profiles.SetPremium("ops@example.com", true); err != nil {
		t.Fatal(err)
	}
	user, _ = f.svc.SyncProfile("ops@example.com")
	if !user.Premium || !f.svc.IsPremium("ops@example.com") {
		t.Fatalf("expected premium after flip")
	}
	if tier := f.svc.Tier(user); tier.Name != PremiumTierName || tier.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("unexpected tier %+v", tier)
	}
	if _, err := f.svc.SyncProfile(" "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPaymentLink(t *testing.T) {
	f := newFixture(t)
	want := "https://www.paypal.com/cgi-bin/webscr?cmd=_xclick&business=pay%40example.com&item_name=SentientPro&amount=10.00"
	if got := f.svc.PaymentLink(); got != want {
		t.Fatalf("unexpected link\n got %s\nwant %s", got, want)
	}

	bare := NewChatService(f.profiles, f.conversations, f.messages, nil, f.llm, Options{})
	if bare.PaymentLink() != "" {
		t.Fatalf("no recipient means no link")
	}
}
