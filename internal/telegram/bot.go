package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/veilchat/anonbot/internal/ban"
	"github.com/veilchat/anonbot/internal/chat"
	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/metrics"
	"github.com/veilchat/anonbot/internal/presence"
	"github.com/veilchat/anonbot/internal/ratelimit"
)

const welcomeText = `Welcome! This bot pairs you with a random partner for an anonymous chat.

/search - find a partner
/cancel - stop searching
/next - skip to a new partner
/stop - end the chat
/clear - delete relayed messages (add "full" to include the first one)
/gender, /looking, /age, /interests - set up your profile
/report - report your current partner`

// Bot routes inbound Telegram updates onto the engine. The command surface
// is deliberately thin: every command maps onto exactly one core operation.
type Bot struct {
	api     *tgbotapi.BotAPI
	tr      domain.Transport
	store   domain.Store
	cache   *presence.Cache
	finder  chat.PartnerFinder
	manager *chat.Manager
	relay   *chat.Relay
	sweeper *chat.Sweeper
	limiter *ratelimit.Limiter // may be nil
	bans    *ban.Store         // may be nil

	mu         sync.Mutex
	statusMsgs map[int64]int       // per-user "searching..." status message
	searchFrom map[int64]time.Time // per-user search start, for match latency
}

// NewBot wires the router. limiter and bans may be nil.
func NewBot(api *tgbotapi.BotAPI, tr domain.Transport, store domain.Store,
	cache *presence.Cache, finder chat.PartnerFinder, manager *chat.Manager,
	relay *chat.Relay, sweeper *chat.Sweeper,
	limiter *ratelimit.Limiter, bans *ban.Store) *Bot {
	return &Bot{
		api:        api,
		tr:         tr,
		store:      store,
		cache:      cache,
		finder:     finder,
		manager:    manager,
		relay:      relay,
		sweeper:    sweeper,
		limiter:    limiter,
		bans:       bans,
		statusMsgs: make(map[int64]int),
		searchFrom: make(map[int64]time.Time),
	}
}

// Run consumes the long-poll update stream until ctx is cancelled. Each
// update is handled on its own goroutine so a stuck platform call blocks
// only that user's event.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	log.Printf("[bot] authorized as @%s, consuming updates", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Printf("[bot] update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	userID := msg.Chat.ID

	user := domain.User{ID: userID}
	if msg.From != nil {
		user.Username = msg.From.UserName
		user.FirstName = msg.From.FirstName
	}
	if err := b.store.EnsureUser(ctx, user); err != nil {
		log.Printf("[bot] ensure user %d: %v", userID, err)
		return
	}

	// The platform's "message pinned" service notice. Remember its id so
	// the sweeper can delete it directly instead of probing.
	if msg.PinnedMessage != nil {
		b.sweeper.RecordNotice(userID, msg.MessageID)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, userID, msg.Command(), msg.CommandArguments())
		return
	}
	b.handleContent(ctx, userID, msg)
}

func (b *Bot) handleCommand(ctx context.Context, userID int64, command, args string) {
	switch command {
	case "start", "help":
		b.notify(ctx, userID, welcomeText)
	case "search":
		b.handleSearch(ctx, userID)
	case "cancel":
		b.handleCancel(ctx, userID)
	case "next":
		b.handleNext(ctx, userID)
	case "stop":
		b.handleStop(ctx, userID)
	case "clear":
		b.relay.ClearHistory(ctx, userID, strings.TrimSpace(args) == "full")
	case "gender":
		b.handleGender(ctx, userID, args)
	case "looking":
		b.handleLooking(ctx, userID, args)
	case "age":
		b.handleAge(ctx, userID, args)
	case "interests":
		b.handleInterests(ctx, userID, args)
	case "report":
		b.handleReport(ctx, userID)
	default:
		b.notify(ctx, userID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleSearch(ctx context.Context, userID int64) {
	if b.bans != nil {
		banned, remaining, _, err := b.bans.IsBanned(ctx, userID)
		if err != nil {
			log.Printf("[bot] ban check %d: %v (failing open)", userID, err)
		}
		if banned {
			b.notify(ctx, userID, fmt.Sprintf(
				"You are temporarily banned (%d minutes left).", remaining/60+1))
			return
		}
	}
	if !b.allow(ctx, userID, ratelimit.RuleSearch) {
		b.notify(ctx, userID, "Too many search requests, slow down.")
		return
	}
	if _, paired := b.cache.Partner(userID); paired {
		b.notify(ctx, userID, "You are already in a chat. Use /next or /stop first.")
		return
	}
	if b.cache.State(userID) == presence.StateSearching {
		b.notify(ctx, userID, "Still looking for a partner, hang on.")
		return
	}

	if err := b.store.Enqueue(ctx, userID); err != nil {
		log.Printf("[bot] enqueue %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}
	b.cache.SetSearching(userID)
	b.markSearchStart(userID)
	b.sendStatus(ctx, userID, "Looking for a partner...")
	b.syncGauges()

	b.tryMatch(ctx, userID)
}

// tryMatch runs one matchmaking attempt for userID and creates the session
// when a partner is claimed.
func (b *Bot) tryMatch(ctx context.Context, userID int64) {
	partner, found, err := b.finder.FindMatch(ctx, userID)
	if err != nil {
		log.Printf("[bot] match for %d: %v", userID, err)
		return
	}
	if !found {
		return
	}

	if _, err := b.manager.Create(ctx, userID, partner); err != nil {
		if errors.Is(err, domain.ErrAlreadyPaired) {
			// A concurrent search committed this user to another session
			// first; that match's introduction covers them. The manager
			// already released the claimed partner back into the queue.
			log.Printf("[bot] match for %d superseded by a concurrent one", userID)
			return
		}
		log.Printf("[bot] create session %d/%d: %v", userID, partner, err)
		b.notify(ctx, userID, "Something went wrong, try /search again.")
		return
	}

	b.resolveStatus(ctx, userID, "Partner found!")
	b.resolveStatus(ctx, partner, "Partner found!")
	b.observeMatch(userID)
	b.observeMatch(partner)
	b.syncGauges()
}

func (b *Bot) handleCancel(ctx context.Context, userID int64) {
	if b.cache.State(userID) != presence.StateSearching {
		b.notify(ctx, userID, "You are not searching right now.")
		return
	}
	if err := b.store.Dequeue(ctx, userID); err != nil {
		log.Printf("[bot] dequeue %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}
	b.cache.ClearSearching(userID)
	b.resolveStatus(ctx, userID, "Search cancelled.")
	b.syncGauges()
}

func (b *Bot) handleStop(ctx context.Context, userID int64) {
	partner, _ := b.cache.Partner(userID)

	err := b.manager.End(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotInSession), errors.Is(err, domain.ErrStateDrift):
		b.notify(ctx, userID, "You are not in a chat. Use /search to find a partner.")
		return
	case err != nil:
		log.Printf("[bot] stop %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}

	b.notify(ctx, userID, "Chat ended. Use /search to find a new partner.")
	if partner != 0 {
		b.notify(ctx, partner, "Your partner left the chat. Use /search to find a new one.")
	}
	b.syncGauges()
}

func (b *Bot) handleNext(ctx context.Context, userID int64) {
	partner, _ := b.cache.Partner(userID)

	b.markSearchStart(userID)
	_, matched, err := b.manager.Skip(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotInSession), errors.Is(err, domain.ErrStateDrift):
		b.notify(ctx, userID, "You are not in a chat. Use /search to find a partner.")
		return
	case errors.Is(err, domain.ErrAlreadyPaired):
		// Claimed by a concurrent match between unpair and re-pair; its
		// introduction covers this user.
		if partner != 0 {
			b.notify(ctx, partner, "Your partner left the chat. Use /search to find a new one.")
		}
		return
	case err != nil:
		log.Printf("[bot] skip %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}

	if partner != 0 {
		b.notify(ctx, partner, "Your partner left the chat. Use /search to find a new one.")
	}
	if matched {
		b.observeMatch(userID)
		if newPartner, ok := b.cache.Partner(userID); ok {
			b.resolveStatus(ctx, newPartner, "Partner found!")
			b.observeMatch(newPartner)
		}
	} else {
		b.sendStatus(ctx, userID, "Looking for a new partner...")
	}
	b.syncGauges()
}

func (b *Bot) handleContent(ctx context.Context, userID int64, msg *tgbotapi.Message) {
	if !b.allow(ctx, userID, ratelimit.RuleMessage) {
		b.notify(ctx, userID, "Too many messages, slow down.")
		return
	}

	outcome, err := b.relay.Relay(ctx, userID, contentFrom(msg))
	switch {
	case errors.Is(err, domain.ErrNotInSession):
		b.notify(ctx, userID, "You are not in a chat. Use /search to find a partner.")
	case err != nil:
		log.Printf("[bot] relay from %d: %v (outcome %s)", userID, err, outcome)
		b.notify(ctx, userID, "Your message could not be delivered.")
	}
}

func (b *Bot) handleGender(ctx context.Context, userID int64, args string) {
	value := strings.ToLower(strings.TrimSpace(args))
	if value != domain.GenderMale && value != domain.GenderFemale {
		b.notify(ctx, userID, "Usage: /gender male|female")
		return
	}
	b.updateProfile(ctx, userID, func(p *domain.Profile) { p.Gender = value })
}

func (b *Bot) handleLooking(ctx context.Context, userID int64, args string) {
	value := strings.ToLower(strings.TrimSpace(args))
	if value != domain.GenderMale && value != domain.GenderFemale && value != domain.PrefAny {
		b.notify(ctx, userID, "Usage: /looking male|female|any")
		return
	}
	b.updateProfile(ctx, userID, func(p *domain.Profile) { p.LookingFor = value })
}

func (b *Bot) handleAge(ctx context.Context, userID int64, args string) {
	age, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || age < 13 || age > 120 {
		b.notify(ctx, userID, "Usage: /age <13-120>")
		return
	}
	b.updateProfile(ctx, userID, func(p *domain.Profile) { p.Age = age })
}

func (b *Bot) handleInterests(ctx context.Context, userID int64, args string) {
	var tags []string
	for _, raw := range strings.Split(args, ",") {
		if tag := strings.ToLower(strings.TrimSpace(raw)); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		b.notify(ctx, userID, "Usage: /interests music, movies, hiking")
		return
	}
	if err := b.store.SetInterests(ctx, userID, tags); err != nil {
		log.Printf("[bot] set interests %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}
	b.notify(ctx, userID, fmt.Sprintf("Interests saved: %s", strings.Join(tags, ", ")))
}

func (b *Bot) handleReport(ctx context.Context, userID int64) {
	partner, ok := b.cache.Partner(userID)
	if !ok {
		b.notify(ctx, userID, "You are not in a chat right now.")
		return
	}
	if b.bans == nil {
		b.notify(ctx, userID, "Report noted.")
		return
	}
	banned, duration, err := b.bans.ReportAndCheck(ctx, partner, "reported by partner")
	if err != nil {
		log.Printf("[bot] report %d -> %d: %v", userID, partner, err)
	}
	if banned {
		log.Printf("[bot] auto-banned %d for %s after reports", partner, duration)
	}
	b.notify(ctx, userID, "Report noted. Thank you.")
}

func (b *Bot) updateProfile(ctx context.Context, userID int64, mutate func(*domain.Profile)) {
	profile, err := b.store.GetProfile(ctx, userID)
	if err != nil {
		log.Printf("[bot] profile %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}
	if profile == nil {
		profile = &domain.Profile{UserID: userID}
	}
	mutate(profile)
	if err := b.store.SetProfile(ctx, *profile); err != nil {
		log.Printf("[bot] set profile %d: %v", userID, err)
		b.notify(ctx, userID, "Something went wrong, try again.")
		return
	}
	b.notify(ctx, userID, "Profile updated.")
}

// allow checks a rate limit rule, failing open without a limiter.
func (b *Bot) allow(ctx context.Context, userID int64, rule ratelimit.Rule) bool {
	if b.limiter == nil {
		return true
	}
	ok, _ := b.limiter.Allow(ctx, userID, rule)
	return ok
}

func (b *Bot) notify(ctx context.Context, userID int64, text string) {
	if _, err := b.tr.Send(ctx, userID, domain.TextContent(text)); err != nil {
		log.Printf("[bot] notify %d: %v", userID, err)
	}
}

// sendStatus sends a status message and tracks its id for a later edit.
func (b *Bot) sendStatus(ctx context.Context, userID int64, text string) {
	msgID, err := b.tr.Send(ctx, userID, domain.TextContent(text))
	if err != nil {
		log.Printf("[bot] status for %d: %v", userID, err)
		return
	}
	b.mu.Lock()
	b.statusMsgs[userID] = msgID
	b.mu.Unlock()
}

// resolveStatus edits the tracked status message to its final text. When
// the edit fails, a fresh message is sent and adopted as the tracked one.
func (b *Bot) resolveStatus(ctx context.Context, userID int64, text string) {
	b.mu.Lock()
	msgID, ok := b.statusMsgs[userID]
	delete(b.statusMsgs, userID)
	b.mu.Unlock()
	if !ok {
		return
	}

	if err := b.tr.Edit(ctx, userID, msgID, text); err != nil {
		log.Printf("[bot] edit status %d/%d: %v, sending replacement", userID, msgID, err)
		if newID, err := b.tr.Send(ctx, userID, domain.TextContent(text)); err == nil {
			b.mu.Lock()
			b.statusMsgs[userID] = newID
			b.mu.Unlock()
		}
	}
}

func (b *Bot) markSearchStart(userID int64) {
	b.mu.Lock()
	b.searchFrom[userID] = time.Now()
	b.mu.Unlock()
}

func (b *Bot) observeMatch(userID int64) {
	b.mu.Lock()
	started, ok := b.searchFrom[userID]
	delete(b.searchFrom, userID)
	b.mu.Unlock()
	if ok {
		metrics.MatchDuration.Observe(time.Since(started).Seconds())
	}
}

func (b *Bot) syncGauges() {
	searching, _ := b.cache.Counts()
	metrics.SearchingUsers.Set(float64(searching))
}
