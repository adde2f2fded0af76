package handlers

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
	"booking-bot/pkg/logger"
)

func (e *Env) handleAdminCommand(user *models.User, cmd string, chatID int64) {
	if !user.IsAdmin {
		e.send(chatID, msgAdminOnly, nil)
		return
	}

	switch cmd {
	case "users":
		e.handleUsers(chatID)
	case "addresource":
		e.setAwaiting(user.ID, awaitResourceCategory)
		e.send(chatID, msgEnterResourceCategory, nil)
	case "delresource":
		e.handleDelResourceCommand(chatID)
	case "cancelany":
		e.handleCancelAnyCommand(chatID)
	case "schedule":
		e.handleSchedule(chatID)
	case "broadcast":
		e.setAwaiting(user.ID, awaitBroadcast)
		e.send(chatID, msgEnterBroadcast, nil)
	}
}

func (e *Env) handleUsers(chatID int64) {
	users, err := e.DB.ListUsers()
	if err != nil {
		e.Log.Error("failed to list users", zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(msgUsersHeader)
	for _, u := range users {
		var marks []string
		if u.IsAdmin {
			marks = append(marks, "админ")
		}
		if !u.Approved {
			marks = append(marks, "не подтверждён")
		}
		if u.Blocked {
			marks = append(marks, "заблокирован")
		}
		fmt.Fprintf(&sb, "\n%s (id %d)", u.FullName, u.ID)
		if len(marks) > 0 {
			fmt.Fprintf(&sb, " — %s", strings.Join(marks, ", "))
		}
	}
	if err := e.Bot.SendLongMessage(chatID, sb.String()); err != nil {
		e.Log.Error("failed to send user list", zap.Error(err))
	}
}

// handleRegistrationDecision finalizes a pending registration from the
// admin's Confirm/Decline buttons.
func (e *Env) handleRegistrationDecision(callback *tgbotapi.CallbackQuery, targetID int64, approve bool) {
	adminID := callback.From.ID
	chatID := callback.Message.Chat.ID

	admin, err := e.DB.GetUser(adminID)
	if err != nil || !admin.IsAdmin {
		e.answer(callback.ID, msgAdminOnly)
		return
	}

	if approve {
		err = e.DB.ApproveUser(targetID)
	} else {
		err = e.DB.DeleteUser(targetID)
	}
	if err != nil {
		// Another admin handled the request first.
		e.edit(chatID, callback.Message.MessageID, msgRegAdminDone, nil)
		e.answer(callback.ID, "")
		return
	}

	e.Log.Info("registration decided",
		zap.Int64(logger.FieldUserID, targetID),
		zap.Bool("approved", approve))

	if approve {
		e.send(targetID, msgRegApproved, nil)
	} else {
		e.send(targetID, msgRegDeclined, nil)
	}
	e.edit(chatID, callback.Message.MessageID, msgRegAdminDone, nil)
	e.answer(callback.ID, "")
}

// The /addresource flow collects category, name and note one message at a
// time, the same way registration collects the full name.

func (e *Env) handleResourceCategoryInput(message *tgbotapi.Message) {
	category, ok := cleanField(message.Text)
	if !ok {
		e.send(message.Chat.ID, msgEnterResourceCategory, nil)
		return
	}

	e.putResourceDraft(message.From.ID, resourceDraft{Category: category})
	e.setAwaiting(message.From.ID, awaitResourceName)
	e.send(message.Chat.ID, fmt.Sprintf(msgEnterResourceName, category), nil)
}

func (e *Env) handleResourceNameInput(message *tgbotapi.Message) {
	name, ok := cleanField(message.Text)
	if !ok {
		draft := e.getResourceDraft(message.From.ID)
		e.send(message.Chat.ID, fmt.Sprintf(msgEnterResourceName, draft.Category), nil)
		return
	}

	draft := e.getResourceDraft(message.From.ID)
	draft.Name = name
	e.putResourceDraft(message.From.ID, draft)
	e.setAwaiting(message.From.ID, awaitResourceNote)
	e.send(message.Chat.ID, msgEnterResourceNote, nil)
}

func (e *Env) handleResourceNoteInput(message *tgbotapi.Message) {
	chatID := message.Chat.ID
	draft := e.getResourceDraft(message.From.ID)
	note := resourceNote(message.Text)

	resource, err := e.DB.CreateResource(draft.Name, draft.Category, note)
	e.clearAwaiting(message.From.ID)
	if err != nil {
		// Unique (category, name) among active resources.
		e.send(chatID, msgResourceExists, nil)
		return
	}

	e.Log.Info("resource added",
		zap.Int64(logger.FieldResourceID, resource.ID),
		zap.String("category", resource.Category))

	e.send(chatID, fmt.Sprintf(msgResourceAdded, resource.Name, resource.Category), nil)
}

// cleanField trims a staged input field and reports whether anything
// remains.
func cleanField(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// resourceNote normalizes the optional note: a lone dash means none.
func resourceNote(s string) string {
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}

func (e *Env) handleDelResourceCommand(chatID int64) {
	resources, err := e.DB.ListResources()
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(resources) == 0 {
		e.send(chatID, msgNoCategories, nil)
		return
	}

	keyboard := resourceListKeyboard(resources, "admin_delres_")
	e.send(chatID, msgChooseDelete, keyboard)
}

func (e *Env) handleDeleteResource(callback *tgbotapi.CallbackQuery, resourceID int64) {
	chatID := callback.Message.Chat.ID

	admin, err := e.DB.GetUser(callback.From.ID)
	if err != nil || !admin.IsAdmin {
		e.answer(callback.ID, msgAdminOnly)
		return
	}

	if err := e.DB.DeactivateResource(resourceID); err != nil {
		e.answer(callback.ID, msgActionStale)
		return
	}

	e.Log.Info("resource deactivated", zap.Int64(logger.FieldResourceID, resourceID))

	e.edit(chatID, callback.Message.MessageID, msgResourceRemoved, nil)
	e.answer(callback.ID, "")
}

func (e *Env) handleCancelAnyCommand(chatID int64) {
	live, err := e.DB.ListLive(e.Clk.Now())
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(live) == 0 {
		e.send(chatID, msgNoBookingsNow, nil)
		return
	}

	keyboard := reservationListKeyboard(live, "admin_cancel_", true)
	e.send(chatID, msgChooseCancelAny, keyboard)
}

func (e *Env) handleAdminCancel(callback *tgbotapi.CallbackQuery, reservationID int64) {
	chatID := callback.Message.Chat.ID

	admin, err := e.DB.GetUser(callback.From.ID)
	if err != nil || !admin.IsAdmin {
		e.answer(callback.ID, msgAdminOnly)
		return
	}

	b, err := e.Service.Cancel(reservationID, callback.From.ID, true)
	if err != nil {
		e.answer(callback.ID, "")
		e.sendOperationError(chatID, err)
		return
	}

	e.Timers.Cancel(reservationID)
	e.resyncSchedule()

	e.Log.Info("reservation cancelled by admin",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Int64(logger.FieldUserID, callback.From.ID))

	e.edit(chatID, callback.Message.MessageID, fmt.Sprintf(msgCancelled,
		b.ResourceName,
		b.TimeStart.Format(timeutil.ClockFormat),
		b.TimeEnd.Format(timeutil.ClockFormat)), nil)
	e.answer(callback.ID, "")

	// The owner learns about the admin's decision right away.
	if b.UserID != callback.From.ID {
		e.send(b.UserID, fmt.Sprintf(msgAdminCancelNote,
			b.ResourceName,
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat)), nil)
	}
}

// handleSchedule rebuilds the notification schedule from the database and
// reports what is running right now.
func (e *Env) handleSchedule(chatID int64) {
	now := e.Clk.Now()

	live, err := e.DB.ListLive(now)
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}
	if err := e.Sched.Resync(live); err != nil {
		e.Log.Error("schedule resync incomplete", zap.Error(err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, msgScheduleResynced, len(live), e.Sched.JobCount())

	current, err := e.DB.ListCurrentActive(now)
	if err != nil {
		e.Log.Error("failed to list current usage", zap.Error(err))
	}
	sb.WriteString("\n\n")
	if len(current) == 0 {
		sb.WriteString(msgScheduleEmpty)
	} else {
		sb.WriteString(msgScheduleHeader)
		for _, b := range current {
			fmt.Fprintf(&sb, "\n%s: %s, до %s", b.ResourceName, b.UserName,
				b.TimeEnd.Format(timeutil.ClockFormat))
		}
	}
	e.send(chatID, sb.String(), nil)
}

func (e *Env) handleBroadcastInput(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	text := strings.TrimSpace(message.Text)
	if text == "" {
		e.send(chatID, msgEnterBroadcast, nil)
		return
	}
	e.clearAwaiting(message.From.ID)

	users, err := e.DB.ListUsers()
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}

	sent := 0
	for _, u := range users {
		if u.Blocked || !u.Approved || u.ID == message.From.ID {
			continue
		}
		if e.send(u.ID, text, nil) != 0 {
			sent++
		}
	}

	e.Log.Info("broadcast delivered", zap.Int("recipients", sent))
	e.send(chatID, fmt.Sprintf(msgBroadcastSent, sent), nil)
}
