package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booking-bot/internal/dialog"
	"booking-bot/internal/timeutil"
	"booking-bot/pkg/logger"
)

// startBookingDialog opens the category step. Any in-flight dialog for the
// user is discarded.
func (e *Env) startBookingDialog(userID, chatID int64) {
	categories, err := e.DB.ListCategories()
	if err != nil {
		e.Log.Error("failed to list categories", zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(categories) == 0 {
		e.send(chatID, msgNoCategories, nil)
		return
	}

	st := e.Dialogs.Begin(userID, chatID, e.Clk.Now())
	st.Categories = categories

	keyboard := categoryKeyboard(categories)
	messageID := e.send(chatID, msgChooseCategory, keyboard)
	if messageID == 0 {
		e.Dialogs.Clear(userID)
		return
	}
	st.AnchorMessageID = messageID
	e.Dialogs.Update(userID, st, e.Clk.Now())
}

// handleBookingCallback advances the dialog. Presses on an outdated
// anchor get an advisory answer; a wrong event shape on the current
// anchor means the dialog state no longer matches the screen.
func (e *Env) handleBookingCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	data := callback.Data

	st, ok := e.Dialogs.Get(userID)
	if !ok {
		e.answer(callback.ID, msgActionStale)
		return
	}
	if callback.Message.MessageID != st.AnchorMessageID {
		e.answer(callback.ID, msgUseCurrentMenu)
		return
	}

	if data == "book_cancel_process" {
		e.Dialogs.Clear(userID)
		e.edit(st.ChatID, st.AnchorMessageID, msgProcessStopped, nil)
		e.answer(callback.ID, "")
		return
	}

	var handled bool
	switch {
	case st.Step == dialog.StepCategory && strings.HasPrefix(data, "book_cat_"):
		handled = e.stepCategory(&st, strings.TrimPrefix(data, "book_cat_"))
	case st.Step == dialog.StepResource && strings.HasPrefix(data, "book_res_"):
		handled = e.stepResource(&st, parseID(data, "book_res_"))
	case st.Step == dialog.StepDate && strings.HasPrefix(data, "book_date_"):
		handled = e.stepDate(&st, strings.TrimPrefix(data, "book_date_"))
	case st.Step == dialog.StepSlot && strings.HasPrefix(data, "book_slot_"):
		handled = e.stepSlot(&st, strings.TrimPrefix(data, "book_slot_"))
	case st.Step == dialog.StepStart && strings.HasPrefix(data, "book_time_"):
		handled = e.stepStart(&st, strings.TrimPrefix(data, "book_time_"))
	case st.Step == dialog.StepDuration && strings.HasPrefix(data, "book_dur_"):
		handled = e.stepDuration(&st, strings.TrimPrefix(data, "book_dur_"))
	case st.Step == dialog.StepConfirm && data == "book_confirm":
		handled = e.stepConfirm(userID, &st)
	default:
		e.answer(callback.ID, msgActionStale)
		return
	}

	if handled {
		e.Dialogs.Update(userID, st, e.Clk.Now())
	} else {
		e.Dialogs.Clear(userID)
	}
	e.answer(callback.ID, "")
}

// editAnchor rewrites the dialog anchor. False means the anchor is gone
// (deleted message or closed chat); the caller drops the state.
func (e *Env) editAnchor(st *dialog.State, text string, markup *tgbotapi.InlineKeyboardMarkup) bool {
	if e.edit(st.ChatID, st.AnchorMessageID, text, markup) {
		return true
	}
	e.send(st.ChatID, msgDialogBroken, nil)
	return false
}

func (e *Env) stepCategory(st *dialog.State, arg string) bool {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(st.Categories) {
		return false
	}
	st.Category = st.Categories[idx]

	resources, err := e.DB.ListResourcesByCategory(st.Category)
	if err != nil {
		e.Log.Error("failed to list resources", zap.Error(err))
		e.edit(st.ChatID, st.AnchorMessageID, msgInternalError, nil)
		return false
	}
	if len(resources) == 0 {
		e.edit(st.ChatID, st.AnchorMessageID, msgNoResources, nil)
		return false
	}

	st.Step = dialog.StepResource
	keyboard := resourceKeyboard(resources)
	return e.editAnchor(st, msgChooseResource, &keyboard)
}

func (e *Env) stepResource(st *dialog.State, resourceID int64) bool {
	resource, err := e.DB.GetResource(resourceID)
	if err != nil || !resource.Active || resource.Category != st.Category {
		e.edit(st.ChatID, st.AnchorMessageID, msgResourceInactive, nil)
		return false
	}
	st.ResourceID = resource.ID
	st.ResourceName = resource.Name

	st.Step = dialog.StepDate
	today := timeutil.Midnight(e.Clk.Now())
	keyboard := dateKeyboard(today, "book_date_", true)
	return e.editAnchor(st, msgChooseDate, &keyboard)
}

func (e *Env) stepDate(st *dialog.State, arg string) bool {
	date, err := timeutil.ParseDateWire(arg, e.Cfg.Location)
	if err != nil {
		return false
	}
	st.Date = date

	slots, err := e.Avail.FreeSlots(st.ResourceID, date)
	if err != nil {
		e.Log.Error("failed to compute free slots",
			zap.Int64(logger.FieldResourceID, st.ResourceID), zap.Error(err))
		e.edit(st.ChatID, st.AnchorMessageID, msgInternalError, nil)
		return false
	}
	if len(slots) == 0 {
		keyboard := dateKeyboard(timeutil.Midnight(e.Clk.Now()), "book_date_", true)
		return e.editAnchor(st, msgNoFreeSlots, &keyboard)
	}
	st.Slots = slots

	// A single free slot makes the slot menu pointless, go straight to the
	// start-time palette.
	if len(slots) == 1 {
		st.Slot = slots[0]
		st.Step = dialog.StepStart
		keyboard := timeKeyboard(st.Slot, e.Cfg.Step)
		return e.editAnchor(st, msgWholeDayFree, &keyboard)
	}

	st.Step = dialog.StepSlot
	keyboard := slotKeyboard(slots)
	return e.editAnchor(st,
		fmt.Sprintf(msgChooseSlot, date.Format(timeutil.DateDisplay)), &keyboard)
}

func (e *Env) stepSlot(st *dialog.State, arg string) bool {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(st.Slots) {
		return false
	}
	st.Slot = st.Slots[idx]

	st.Step = dialog.StepStart
	keyboard := timeKeyboard(st.Slot, e.Cfg.Step)
	return e.editAnchor(st, msgChooseStart, &keyboard)
}

func (e *Env) stepStart(st *dialog.State, arg string) bool {
	offset, err := timeutil.ParseClock(arg)
	if err != nil {
		return false
	}
	start := timeutil.At(st.Date, offset)
	if start.Before(st.Slot.Start) || !start.Before(st.Slot.End) {
		return false
	}
	st.Start = start

	limit := st.Slot.End.Sub(start)
	if limit > e.Cfg.MaxDuration {
		limit = e.Cfg.MaxDuration
	}

	st.Step = dialog.StepDuration
	keyboard := durationKeyboard(limit, e.Cfg.Step)
	return e.editAnchor(st, msgChooseDuration, &keyboard)
}

func (e *Env) stepDuration(st *dialog.State, arg string) bool {
	duration, err := timeutil.ParseClock(arg)
	if err != nil || duration <= 0 {
		return false
	}
	st.Duration = duration

	st.Step = dialog.StepConfirm
	keyboard := confirmKeyboard()
	return e.editAnchor(st, fmt.Sprintf(msgConfirmSummary,
		st.ResourceName,
		st.Date.Format(timeutil.DateDisplay),
		st.Start.Format(timeutil.ClockFormat),
		st.Start.Add(duration).Format(timeutil.ClockFormat)), &keyboard)
}

// stepConfirm is terminal either way: the dialog ends with a created
// reservation or with the error shown on the anchor.
func (e *Env) stepConfirm(userID int64, st *dialog.State) bool {
	created, err := e.Service.Create(userID, st.ResourceID, st.Start, st.Duration)
	if err != nil {
		e.Dialogs.Clear(userID)
		e.edit(st.ChatID, st.AnchorMessageID, msgProcessStopped, nil)
		e.sendOperationError(st.ChatID, err)
		return false
	}

	e.Dialogs.Clear(userID)
	e.resyncSchedule()

	e.Log.Info("reservation created",
		zap.Int64(logger.FieldUserID, userID),
		zap.Int64(logger.FieldReservationID, created.ID),
		zap.Int64(logger.FieldResourceID, created.ResourceID))

	e.edit(st.ChatID, st.AnchorMessageID, fmt.Sprintf(msgBookingCreated,
		st.ResourceName,
		created.Date.Format(timeutil.DateDisplay),
		created.TimeStart.Format(timeutil.ClockFormat),
		created.TimeEnd.Format(timeutil.ClockFormat),
		int(e.Cfg.LeadStart/time.Minute)), nil)
	return false
}
