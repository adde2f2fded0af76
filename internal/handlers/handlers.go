package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booking-bot/internal/availability"
	"booking-bot/internal/bot"
	"booking-bot/internal/clock"
	"booking-bot/internal/config"
	"booking-bot/internal/database"
	"booking-bot/internal/dialog"
	"booking-bot/internal/models"
	"booking-bot/internal/scheduler"
	"booking-bot/internal/service"
	"booking-bot/internal/timeutil"
	"booking-bot/pkg/logger"
)

// Env carries the collaborators every handler needs. Handlers are
// functions on Env, one inbound event at a time per user.
type Env struct {
	Bot     *bot.Bot
	DB      *database.DB
	Service *service.Service
	Avail   *availability.Calculator
	Dialogs *dialog.Manager
	Sched   *scheduler.Scheduler
	Timers  *scheduler.TimerRegistry
	Clk     clock.Clock
	Cfg     *config.Config
	Log     *zap.Logger

	userLocks sync.Map

	// awaiting tracks plain-text input states (registration name,
	// resource entry, broadcast text) outside the booking dialog;
	// resourceDrafts holds the staged /addresource fields between
	// messages.
	awaitMu        sync.Mutex
	awaiting       map[int64]string
	resourceDrafts map[int64]resourceDraft
}

type resourceDraft struct {
	Category string
	Name     string
}

const (
	awaitFullName         = "awaiting_full_name"
	awaitResourceCategory = "awaiting_resource_category"
	awaitResourceName     = "awaiting_resource_name"
	awaitResourceNote     = "awaiting_resource_note"
	awaitBroadcast        = "awaiting_broadcast"
)

// HandleUpdate is the entry point for one inbound update. Events for the
// same user are serialized; different users proceed in parallel.
func (e *Env) HandleUpdate(update tgbotapi.Update) {
	var userID int64
	switch {
	case update.Message != nil:
		userID = update.Message.From.ID
	case update.CallbackQuery != nil:
		userID = update.CallbackQuery.From.ID
	default:
		return
	}

	muI, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	switch {
	case update.Message != nil && update.Message.IsCommand():
		e.handleCommand(update.Message)
	case update.Message != nil:
		e.handleText(update.Message)
	case update.CallbackQuery != nil:
		e.handleCallback(update.CallbackQuery)
	}
}

func (e *Env) handleCommand(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	cmd := message.Command()

	if cmd == "start" {
		e.handleStart(message)
		return
	}
	if cmd == "help" {
		e.handleHelp(userID, chatID)
		return
	}

	user, err := e.requireActiveUser(userID, chatID)
	if err != nil {
		return
	}

	switch cmd {
	case "booking":
		e.startBookingDialog(userID, chatID)
	case "mybookings":
		e.handleMyBookings(userID, chatID)
	case "allbookings":
		e.handleAllBookings(chatID)
	case "cancel":
		e.handleCancelCommand(userID, chatID)
	case "finish":
		e.handleFinishCommand(userID, chatID)
	case "extend":
		e.handleExtendCommand(userID, chatID)
	case "equipment":
		e.handleEquipment(chatID)
	case "datebookings":
		e.handleDateBookingsCommand(chatID)
	case "resourcebookings":
		e.handleResourceBookingsCommand(chatID)
	case "users", "addresource", "delresource", "cancelany", "schedule", "broadcast":
		e.handleAdminCommand(user, cmd, chatID)
	default:
		e.handleHelp(userID, chatID)
	}
}

func (e *Env) handleStart(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	user, err := e.DB.GetUser(userID)
	if err == nil {
		if user.Approved {
			e.send(chatID, msgAlreadyActive, nil)
		} else {
			e.send(chatID, msgAwaitingApproval, nil)
		}
		return
	}
	if !errors.Is(err, models.ErrNotFound) {
		e.Log.Error("failed to look up user",
			zap.Int64(logger.FieldUserID, userID), zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}

	// The configured admin is activated immediately.
	if e.Bot.IsDefaultAdmin(userID) {
		name := strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
		if err := e.DB.CreateUser(userID, name, true); err != nil {
			e.Log.Error("failed to create admin user", zap.Error(err))
			e.send(chatID, msgInternalError, nil)
			return
		}
		e.send(chatID, msgAlreadyActive, nil)
		return
	}

	e.setAwaiting(userID, awaitFullName)
	e.send(chatID, msgEnterFullName, nil)
}

func (e *Env) handleHelp(userID, chatID int64) {
	text := msgHelp
	if user, err := e.DB.GetUser(userID); err == nil && user.IsAdmin {
		text += msgHelpAdmin
	}
	e.send(chatID, text, nil)
}

// handleText routes free-form text. Only the awaiting_* states consume it;
// anything else is ignored.
func (e *Env) handleText(message *tgbotapi.Message) {
	userID := message.From.ID

	switch e.getAwaiting(userID) {
	case awaitFullName:
		e.handleFullNameInput(message)
	case awaitResourceCategory:
		e.handleResourceCategoryInput(message)
	case awaitResourceName:
		e.handleResourceNameInput(message)
	case awaitResourceNote:
		e.handleResourceNoteInput(message)
	case awaitBroadcast:
		e.handleBroadcastInput(message)
	}
}

func (e *Env) handleFullNameInput(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	name := strings.TrimSpace(message.Text)
	if len([]rune(name)) < 3 {
		e.send(chatID, msgNameTooShort, nil)
		return
	}

	if err := e.DB.CreateUser(userID, name, false); err != nil {
		e.Log.Error("failed to create user",
			zap.Int64(logger.FieldUserID, userID), zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}
	e.clearAwaiting(userID)

	e.send(chatID, msgRequestSent, nil)

	keyboard := registrationKeyboard(userID)
	admins, err := e.DB.ListAdmins()
	if err != nil || len(admins) == 0 {
		e.send(e.Bot.DefaultAdminID, fmt.Sprintf(msgNewRegRequest, name, userID), keyboard)
		return
	}
	for _, admin := range admins {
		e.send(admin.ID, fmt.Sprintf(msgNewRegRequest, name, userID), keyboard)
	}
}

func (e *Env) handleCallback(callback *tgbotapi.CallbackQuery) {
	data := callback.Data
	if callback.Message == nil {
		return
	}

	switch {
	case strings.HasPrefix(data, "book_"):
		e.handleBookingCallback(callback)
	case strings.HasPrefix(data, "confirm_start_"):
		e.handleConfirmStart(callback, parseID(data, "confirm_start_"))
	case strings.HasPrefix(data, "cancel_booking_"):
		e.handleCancelBooking(callback, parseID(data, "cancel_booking_"))
	case strings.HasPrefix(data, "finish_booking_"):
		e.handleFinishBooking(callback, parseID(data, "finish_booking_"))
	case strings.HasPrefix(data, "extend_prompt_"):
		e.handleExtendPrompt(callback, parseID(data, "extend_prompt_"))
	case strings.HasPrefix(data, "extend_time_"):
		e.handleExtendTime(callback, strings.TrimPrefix(data, "extend_time_"))
	case strings.HasPrefix(data, "decline_extend_"):
		e.handleDeclineExtend(callback)
	case strings.HasPrefix(data, "view_date_"):
		e.handleViewDate(callback, strings.TrimPrefix(data, "view_date_"))
	case strings.HasPrefix(data, "view_res_"):
		e.handleViewResource(callback, parseID(data, "view_res_"))
	case strings.HasPrefix(data, "reg_confirm_"):
		e.handleRegistrationDecision(callback, parseID(data, "reg_confirm_"), true)
	case strings.HasPrefix(data, "reg_decline_"):
		e.handleRegistrationDecision(callback, parseID(data, "reg_decline_"), false)
	case strings.HasPrefix(data, "admin_delres_"):
		e.handleDeleteResource(callback, parseID(data, "admin_delres_"))
	case strings.HasPrefix(data, "admin_cancel_"):
		e.handleAdminCancel(callback, parseID(data, "admin_cancel_"))
	default:
		e.answer(callback.ID, msgActionStale)
	}
}

// requireActiveUser resolves the sender and replies itself when the
// account cannot act, so callers just bail on error.
func (e *Env) requireActiveUser(userID, chatID int64) (*models.User, error) {
	user, err := e.DB.GetUser(userID)
	if errors.Is(err, models.ErrNotFound) {
		e.send(chatID, msgNotRegistered, nil)
		return nil, err
	}
	if err != nil {
		e.Log.Error("failed to look up user",
			zap.Int64(logger.FieldUserID, userID), zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return nil, err
	}
	if user.Blocked {
		e.send(chatID, msgBlocked, nil)
		return nil, models.ErrAccountInactive
	}
	if !user.Approved {
		e.send(chatID, msgAwaitingApproval, nil)
		return nil, models.ErrAccountInactive
	}
	return user, nil
}

// resyncSchedule reloads the live reservation set and reconciles the
// scheduler. Called after every reservation mutation.
func (e *Env) resyncSchedule() {
	live, err := e.DB.ListLive(e.Clk.Now())
	if err != nil {
		e.Log.Error("failed to load live reservations for resync", zap.Error(err))
		return
	}
	if err := e.Sched.Resync(live); err != nil {
		e.Log.Error("schedule resync incomplete", zap.Error(err))
	}
}

// sendOperationError maps a service error onto its user-facing text.
func (e *Env) sendOperationError(chatID int64, err error) {
	if oe, ok := models.IsOverlap(err); ok {
		e.send(chatID, fmt.Sprintf(msgOverlap,
			oe.Conflict.TimeStart.Format("15:04"),
			oe.Conflict.TimeEnd.Format("15:04"),
			oe.OwnerName), nil)
		return
	}

	switch {
	case errors.Is(err, models.ErrOutsideWorkingHours):
		e.send(chatID, fmt.Sprintf(msgOutsideHours,
			timeutil.FormatOffset(e.Cfg.WorkingStart), timeutil.FormatOffset(e.Cfg.WorkingEnd)), nil)
	case errors.Is(err, models.ErrTimeInPast):
		e.send(chatID, msgTimeInPast, nil)
	case errors.Is(err, models.ErrLimitExceeded):
		e.send(chatID, msgLimitExceeded, nil)
	case errors.Is(err, models.ErrResourceInactive):
		e.send(chatID, msgResourceInactive, nil)
	case errors.Is(err, models.ErrAccountInactive):
		e.send(chatID, msgBlocked, nil)
	case errors.Is(err, models.ErrStaleState), errors.Is(err, models.ErrNotFound):
		e.send(chatID, msgActionStale, nil)
	default:
		e.Log.Error("operation failed", zap.Error(err))
		e.send(chatID, msgInternalError, nil)
	}
}

// send delivers a message, applying the blocked-user protocol on failure.
func (e *Env) send(chatID int64, text string, markup interface{}) int {
	messageID, err := e.Bot.SendMessage(chatID, text, markup)
	if errors.Is(err, bot.ErrBlockedByUser) {
		e.markBlocked(chatID)
		return 0
	}
	if err != nil {
		e.Log.Error("failed to send message",
			zap.Int64(logger.FieldChatID, chatID), zap.Error(err))
		return 0
	}
	return messageID
}

// edit reports whether the message is still reachable: false means the
// target was deleted or the chat is closed to us.
func (e *Env) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) bool {
	var m interface{}
	if markup != nil {
		m = markup
	}
	err := e.Bot.EditMessage(chatID, messageID, text, m)
	if err == nil || errors.Is(err, bot.ErrNotModified) {
		return true
	}
	if errors.Is(err, bot.ErrBlockedByUser) {
		e.markBlocked(chatID)
		return false
	}
	if errors.Is(err, bot.ErrMessageNotFound) {
		return false
	}
	e.Log.Error("failed to edit message",
		zap.Int64(logger.FieldChatID, chatID),
		zap.Int(logger.FieldMessageID, messageID),
		zap.Error(err))
	return false
}

func (e *Env) answer(callbackID, text string) {
	if err := e.Bot.AnswerCallback(callbackID, text); err != nil {
		e.Log.Warn("failed to answer callback", zap.Error(err))
	}
}

// markBlocked records that the chat is unreachable and drops the user's
// scheduled notifications. Private chats share the user id.
func (e *Env) markBlocked(chatID int64) {
	e.Log.Info("user unreachable, marking blocked", zap.Int64(logger.FieldUserID, chatID))

	if err := e.DB.SetUserBlocked(chatID, true); err != nil {
		e.Log.Error("failed to mark user blocked", zap.Error(err))
		return
	}
	live, err := e.DB.ListLive(e.Clk.Now())
	if err != nil {
		return
	}
	for i := range live {
		if live[i].UserID == chatID {
			e.Sched.RemoveJobsFor(live[i].ID)
		}
	}
}

func (e *Env) setAwaiting(userID int64, state string) {
	e.awaitMu.Lock()
	if e.awaiting == nil {
		e.awaiting = make(map[int64]string)
	}
	e.awaiting[userID] = state
	e.awaitMu.Unlock()
}

func (e *Env) getAwaiting(userID int64) string {
	e.awaitMu.Lock()
	defer e.awaitMu.Unlock()
	return e.awaiting[userID]
}

// clearAwaiting ends the user's text-input flow, dropping any staged
// resource fields with it.
func (e *Env) clearAwaiting(userID int64) {
	e.awaitMu.Lock()
	delete(e.awaiting, userID)
	delete(e.resourceDrafts, userID)
	e.awaitMu.Unlock()
}

func (e *Env) putResourceDraft(userID int64, draft resourceDraft) {
	e.awaitMu.Lock()
	if e.resourceDrafts == nil {
		e.resourceDrafts = make(map[int64]resourceDraft)
	}
	e.resourceDrafts[userID] = draft
	e.awaitMu.Unlock()
}

func (e *Env) getResourceDraft(userID int64) resourceDraft {
	e.awaitMu.Lock()
	defer e.awaitMu.Unlock()
	return e.resourceDrafts[userID]
}

// RunDialogGC discards dialogs idle past the stall timeout, once a
// minute, and rewrites their anchors so the stale keyboard disappears.
func (e *Env) RunDialogGC(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stalled := e.Dialogs.CollectStalled(e.Cfg.DialogStall, e.Clk.Now())
			for userID, st := range stalled {
				e.Log.Info("dialog stalled, discarding",
					zap.Int64(logger.FieldUserID, userID))
				e.edit(st.ChatID, st.AnchorMessageID, msgDialogStalled, nil)
			}
		}
	}
}

func parseID(data, prefix string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
