package handlers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"booking-bot/internal/models"
	"booking-bot/internal/service"
	"booking-bot/internal/timeutil"
	"booking-bot/pkg/logger"
)

// HandleJob receives fired scheduler jobs. It runs on the timer goroutine
// and re-checks reservation state against the store, since the job may
// have been armed long before it fires.
func (e *Env) HandleJob(kind models.JobKind, reservationID int64) {
	switch kind {
	case models.JobNotifyStart:
		e.notifyStart(reservationID)
	case models.JobNotifyEnd:
		e.notifyEnd(reservationID)
	default:
		e.Log.Warn("unknown job kind fired", zap.String(logger.FieldJob, string(kind)))
	}
}

// notifyStart sends the arrival reminder and arms the confirmation timer
// that auto-cancels the reservation if the user never shows up.
func (e *Env) notifyStart(reservationID int64) {
	b, err := e.DB.FindReservation(reservationID)
	if err != nil {
		e.Log.Warn("notify_start fired for missing reservation",
			zap.Int64(logger.FieldReservationID, reservationID), zap.Error(err))
		return
	}
	if b.Status != models.StatusPendingConfirmation {
		return
	}

	text := fmt.Sprintf(msgNotifyStart,
		b.TimeStart.Format(timeutil.ClockFormat),
		b.ResourceName,
		int(e.Cfg.ConfirmTimeout/time.Minute))
	keyboard := confirmStartKeyboard(reservationID)

	messageID := e.send(b.UserID, text, keyboard)
	if messageID == 0 {
		// Unreachable user; the blocked protocol already ran in send.
		return
	}

	e.Timers.Arm(reservationID, b.UserID, messageID, e.Cfg.ConfirmTimeout, func(chatID int64, anchorID int) {
		e.confirmationExpired(reservationID, chatID, anchorID)
	})

	e.Log.Info("arrival reminder sent",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Int64(logger.FieldUserID, b.UserID))
}

// confirmationExpired is the losing-user side of the confirmation race.
// The compare-and-set decides: if it succeeds the reservation is gone, if
// it fails the user confirmed in time and the anchor shows success.
func (e *Env) confirmationExpired(reservationID, chatID int64, anchorID int) {
	err := e.Service.AutoCancelUnconfirmed(reservationID)
	if err != nil {
		if service.IsStale(err) {
			e.edit(chatID, anchorID, msgStartConfirmed, nil)
			return
		}
		e.Log.Error("auto-cancel failed",
			zap.Int64(logger.FieldReservationID, reservationID), zap.Error(err))
		return
	}

	e.resyncSchedule()

	e.Log.Info("reservation auto-cancelled",
		zap.Int64(logger.FieldReservationID, reservationID))

	e.edit(chatID, anchorID, msgAutoCancelled, nil)

	if b, err := e.DB.FindReservation(reservationID); err == nil {
		e.send(b.UserID, fmt.Sprintf(msgAutoCancelNote,
			b.ResourceName,
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat)), nil)
	}
}

// notifyEnd reminds about the approaching end and offers an extension
// when the following slot is free and the working day allows it.
func (e *Env) notifyEnd(reservationID int64) {
	b, err := e.DB.FindReservation(reservationID)
	if err != nil {
		e.Log.Warn("notify_end fired for missing reservation",
			zap.Int64(logger.FieldReservationID, reservationID), zap.Error(err))
		return
	}
	if b.Status != models.StatusActive {
		return
	}

	eligible, err := e.Service.CanOfferExtension(b)
	if err != nil {
		e.Log.Error("extension eligibility check failed",
			zap.Int64(logger.FieldReservationID, reservationID), zap.Error(err))
		eligible = false
	}

	if !eligible {
		e.send(b.UserID, fmt.Sprintf(msgNotifyEnd,
			b.ResourceName, b.TimeEnd.Format(timeutil.ClockFormat)), nil)
		return
	}

	choices, err := e.Service.ExtensionChoices(b)
	if err != nil || len(choices) == 0 {
		e.send(b.UserID, fmt.Sprintf(msgNotifyEnd,
			b.ResourceName, b.TimeEnd.Format(timeutil.ClockFormat)), nil)
		return
	}

	keyboard := extensionKeyboard(reservationID, choices)
	e.send(b.UserID, fmt.Sprintf(msgNotifyEndExtend,
		b.ResourceName, b.TimeEnd.Format(timeutil.ClockFormat)), keyboard)

	e.Log.Info("end-of-slot reminder sent",
		zap.Int64(logger.FieldReservationID, reservationID),
		zap.Int64(logger.FieldUserID, b.UserID))
}
