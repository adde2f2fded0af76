package handlers

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
	"booking-bot/pkg/logger"
)

// handleConfirmStart resolves the arrival-confirmation race on the user
// side: cancel the timer, CAS the status, rewrite the prompt.
func (e *Env) handleConfirmStart(callback *tgbotapi.CallbackQuery, reservationID int64) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	e.Timers.Cancel(reservationID)

	b, err := e.Service.ConfirmStart(reservationID, userID)
	if err != nil {
		if errors.Is(err, models.ErrNoPermission) || errors.Is(err, models.ErrNotFound) {
			e.answer(callback.ID, msgActionStale)
			return
		}
		if errors.Is(err, models.ErrAccountInactive) {
			e.answer(callback.ID, msgBlocked)
			return
		}
		// The auto-cancel timer won; show the terminal text.
		e.edit(chatID, messageID, msgAutoCancelled, nil)
		if err := e.Bot.AnswerCallbackAlert(callback.ID, msgAutoCancelled); err != nil {
			e.Log.Warn("failed to answer callback", zap.Error(err))
		}
		return
	}

	e.Log.Info("reservation confirmed",
		zap.Int64(logger.FieldReservationID, b.ID),
		zap.Int64(logger.FieldUserID, userID))

	e.edit(chatID, messageID, msgStartConfirmed, nil)
	e.answer(callback.ID, "")
}

func (e *Env) handleMyBookings(userID, chatID int64) {
	reservations, err := e.Service.ListLiveForUser(userID)
	if err != nil {
		e.Log.Error("failed to list reservations", zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(reservations) == 0 {
		e.send(chatID, msgMyBookingsNone, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(msgMyBookingsHeader)
	for _, b := range reservations {
		fmt.Fprintf(&sb, "\n%s: %s, %s - %s", b.ResourceName,
			b.Date.Format(timeutil.DateDisplay),
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat))
	}
	e.send(chatID, sb.String(), nil)
}

func (e *Env) handleAllBookings(chatID int64) {
	reservations, err := e.DB.ListLive(e.Clk.Now())
	if err != nil {
		e.Log.Error("failed to list reservations", zap.Error(err))
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(reservations) == 0 {
		e.send(chatID, msgAllBookingsNone, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(msgAllBookingsHead)
	for _, b := range reservations {
		fmt.Fprintf(&sb, "\n%s: %s, %s - %s (%s)", b.ResourceName,
			b.Date.Format(timeutil.DateDisplay),
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat),
			b.UserName)
	}
	if err := e.Bot.SendLongMessage(chatID, sb.String()); err != nil {
		e.Log.Error("failed to send reservation list", zap.Error(err))
	}
}

// handleCancelCommand lists future reservations the owner may cancel.
func (e *Env) handleCancelCommand(userID, chatID int64) {
	reservations, err := e.Service.ListLiveForUser(userID)
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}

	now := e.Clk.Now()
	var cancellable []models.Reservation
	for _, b := range reservations {
		if b.TimeStart.After(now) {
			cancellable = append(cancellable, b)
		}
	}
	if len(cancellable) == 0 {
		e.send(chatID, msgNothingToCancel, nil)
		return
	}

	keyboard := reservationListKeyboard(cancellable, "cancel_booking_", false)
	e.send(chatID, msgChooseCancel, keyboard)
}

func (e *Env) handleCancelBooking(callback *tgbotapi.CallbackQuery, reservationID int64) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	b, err := e.Service.Cancel(reservationID, userID, false)
	if err != nil {
		e.answer(callback.ID, "")
		e.sendOperationError(chatID, err)
		return
	}

	e.Timers.Cancel(reservationID)
	e.resyncSchedule()

	e.Log.Info("reservation cancelled",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Int64(logger.FieldUserID, userID))

	e.edit(chatID, callback.Message.MessageID, fmt.Sprintf(msgCancelled,
		b.ResourceName,
		b.TimeStart.Format(timeutil.ClockFormat),
		b.TimeEnd.Format(timeutil.ClockFormat)), nil)
	e.answer(callback.ID, "")
}

// handleFinishCommand lists reservations running right now.
func (e *Env) handleFinishCommand(userID, chatID int64) {
	running := e.listRunning(userID)
	if len(running) == 0 {
		e.send(chatID, msgNothingToFinish, nil)
		return
	}

	keyboard := reservationListKeyboard(running, "finish_booking_", false)
	e.send(chatID, msgChooseFinish, keyboard)
}

func (e *Env) handleFinishBooking(callback *tgbotapi.CallbackQuery, reservationID int64) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	if _, err := e.Service.Finish(reservationID, userID); err != nil {
		e.answer(callback.ID, "")
		e.sendOperationError(chatID, err)
		return
	}

	e.resyncSchedule()

	e.Log.Info("reservation finished early",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Int64(logger.FieldUserID, userID))

	e.edit(chatID, callback.Message.MessageID, msgFinished, nil)
	e.answer(callback.ID, "")
}

func (e *Env) handleExtendCommand(userID, chatID int64) {
	running := e.listRunning(userID)
	if len(running) == 0 {
		e.send(chatID, msgNothingToExtend, nil)
		return
	}

	keyboard := reservationListKeyboard(running, "extend_prompt_", false)
	e.send(chatID, msgChooseExtend, keyboard)
}

// handleExtendPrompt shows the available extension amounts for one
// reservation.
func (e *Env) handleExtendPrompt(callback *tgbotapi.CallbackQuery, reservationID int64) {
	chatID := callback.Message.Chat.ID

	b, err := e.DB.FindReservation(reservationID)
	if err != nil || b.UserID != callback.From.ID || b.Status != models.StatusActive {
		e.answer(callback.ID, msgActionStale)
		return
	}

	choices, err := e.Service.ExtensionChoices(b)
	if err != nil {
		e.answer(callback.ID, "")
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(choices) == 0 {
		e.edit(chatID, callback.Message.MessageID, msgExtendBlocked, nil)
		e.answer(callback.ID, "")
		return
	}

	keyboard := extensionKeyboard(reservationID, choices)
	e.edit(chatID, callback.Message.MessageID, fmt.Sprintf(msgNotifyEndExtend,
		b.ResourceName, b.TimeEnd.Format(timeutil.ClockFormat)), &keyboard)
	e.answer(callback.ID, "")
}

// handleExtendTime applies an extension picked from the keyboard. The
// data carries "<rid>_<HH:MM>".
func (e *Env) handleExtendTime(callback *tgbotapi.CallbackQuery, arg string) {
	chatID := callback.Message.Chat.ID

	sep := strings.LastIndexByte(arg, '_')
	if sep <= 0 {
		e.answer(callback.ID, msgActionStale)
		return
	}
	reservationID := parseID(arg[:sep], "")
	delta, err := timeutil.ParseClock(arg[sep+1:])
	if err != nil || reservationID == 0 {
		e.answer(callback.ID, msgActionStale)
		return
	}

	b, err := e.Service.Extend(reservationID, callback.From.ID, delta)
	if err != nil {
		e.answer(callback.ID, "")
		e.sendOperationError(chatID, err)
		return
	}

	e.resyncSchedule()

	e.Log.Info("reservation extended",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Duration("delta", delta))

	e.edit(chatID, callback.Message.MessageID,
		fmt.Sprintf(msgExtended, b.TimeEnd.Format(timeutil.ClockFormat)), nil)
	e.answer(callback.ID, "")
}

func (e *Env) handleDeclineExtend(callback *tgbotapi.CallbackQuery) {
	e.edit(callback.Message.Chat.ID, callback.Message.MessageID, msgExtendDeclined, nil)
	e.answer(callback.ID, "")
}

// Read-only views

func (e *Env) handleEquipment(chatID int64) {
	resources, err := e.DB.ListResources()
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(resources) == 0 {
		e.send(chatID, msgNoCategories, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(msgEquipmentHeader)
	category := ""
	for _, r := range resources {
		if r.Category != category {
			category = r.Category
			fmt.Fprintf(&sb, "\n%s:\n", category)
		}
		sb.WriteString("  • " + r.Name)
		if r.Note != "" {
			sb.WriteString(" (" + r.Note + ")")
		}
		sb.WriteString("\n")
	}
	if err := e.Bot.SendLongMessage(chatID, sb.String()); err != nil {
		e.Log.Error("failed to send equipment list", zap.Error(err))
	}
}

func (e *Env) handleDateBookingsCommand(chatID int64) {
	today := timeutil.Midnight(e.Clk.Now())
	keyboard := dateKeyboard(today, "view_date_", false)
	e.send(chatID, msgDateForList, keyboard)
}

func (e *Env) handleViewDate(callback *tgbotapi.CallbackQuery, arg string) {
	chatID := callback.Message.Chat.ID

	date, err := timeutil.ParseDateWire(arg, e.Cfg.Location)
	if err != nil {
		e.answer(callback.ID, msgActionStale)
		return
	}

	reservations, err := e.DB.ListOnDate(date)
	if err != nil {
		e.answer(callback.ID, "")
		e.send(chatID, msgInternalError, nil)
		return
	}

	display := date.Format(timeutil.DateDisplay)
	if len(reservations) == 0 {
		e.edit(chatID, callback.Message.MessageID, fmt.Sprintf(msgNoBookingsDate, display), nil)
		e.answer(callback.ID, "")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, msgDateListHeader, display)
	for _, b := range reservations {
		fmt.Fprintf(&sb, "\n%s: %s - %s, %s", b.ResourceName,
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat),
			b.UserName)
	}
	e.edit(chatID, callback.Message.MessageID, sb.String(), nil)
	e.answer(callback.ID, "")
}

func (e *Env) handleResourceBookingsCommand(chatID int64) {
	resources, err := e.DB.ListResources()
	if err != nil {
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(resources) == 0 {
		e.send(chatID, msgNoCategories, nil)
		return
	}

	keyboard := resourceListKeyboard(resources, "view_res_")
	e.send(chatID, msgResourceForList, keyboard)
}

func (e *Env) handleViewResource(callback *tgbotapi.CallbackQuery, resourceID int64) {
	chatID := callback.Message.Chat.ID

	resource, err := e.DB.GetResource(resourceID)
	if err != nil {
		e.answer(callback.ID, msgActionStale)
		return
	}

	reservations, err := e.DB.ListUpcomingForResource(resourceID, e.Clk.Now())
	if err != nil {
		e.answer(callback.ID, "")
		e.send(chatID, msgInternalError, nil)
		return
	}
	if len(reservations) == 0 {
		e.edit(chatID, callback.Message.MessageID, msgNoBookingsRes, nil)
		e.answer(callback.ID, "")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, msgResListHeader, resource.Name)
	for _, b := range reservations {
		fmt.Fprintf(&sb, "\n%s %s - %s, %s",
			b.Date.Format(timeutil.DateDisplay),
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat),
			b.UserName)
	}
	e.edit(chatID, callback.Message.MessageID, sb.String(), nil)
	e.answer(callback.ID, "")
}

// listRunning returns the user's active reservations whose interval
// contains now.
func (e *Env) listRunning(userID int64) []models.Reservation {
	reservations, err := e.Service.ListLiveForUser(userID)
	if err != nil {
		e.Log.Error("failed to list reservations", zap.Error(err))
		return nil
	}

	now := e.Clk.Now()
	var running []models.Reservation
	for _, b := range reservations {
		if b.Status == models.StatusActive && !now.Before(b.TimeStart) && now.Before(b.TimeEnd) {
			running = append(running, b)
		}
	}
	return running
}
