package handlers

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
)

const stopProcessLabel = "🚫 Прервать"

func stopRow() []tgbotapi.InlineKeyboardButton {
	return []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(stopProcessLabel, "book_cancel_process"),
	}
}

func categoryKeyboard(categories []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, c := range categories {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(c, fmt.Sprintf("book_cat_%d", i)),
		})
	}
	rows = append(rows, stopRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func resourceKeyboard(resources []models.Resource) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range resources {
		label := r.Name
		if r.Note != "" {
			label = fmt.Sprintf("%s (%s)", r.Name, r.Note)
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("book_res_%d", r.ID)),
		})
	}
	rows = append(rows, stopRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// dateKeyboard offers today plus the following six days.
func dateKeyboard(today time.Time, prefix string, withStop bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < 7; i++ {
		d := today.AddDate(0, 0, i)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				d.Format(timeutil.DateDisplay),
				fmt.Sprintf("%s%s", prefix, d.Format(timeutil.DateWire)),
			),
		})
	}
	if withStop {
		rows = append(rows, stopRow())
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func slotKeyboard(slots []timeutil.Interval) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, s := range slots {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(s.String(), fmt.Sprintf("book_slot_%d", i)),
		})
	}
	rows = append(rows, stopRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// timeKeyboard lists every quantized start inside the slot, three per row.
func timeKeyboard(slot timeutil.Interval, step time.Duration) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for t := slot.Start; t.Add(step).Before(slot.End) || t.Add(step).Equal(slot.End); t = t.Add(step) {
		label := t.Format(timeutil.ClockFormat)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "book_time_"+label))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, stopRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// durationKeyboard lists quantized durations from one step up to limit.
func durationKeyboard(limit, step time.Duration) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for d := step; d <= limit; d += step {
		label := timeutil.FormatOffset(d)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "book_dur_"+label))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, stopRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "book_confirm"),
			tgbotapi.NewInlineKeyboardButtonData(stopProcessLabel, "book_cancel_process"),
		),
	)
}

func confirmStartKeyboard(reservationID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msgConfirmButton, fmt.Sprintf("confirm_start_%d", reservationID)),
		),
	)
}

func extensionKeyboard(reservationID int64, choices []time.Duration) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, d := range choices {
		label := timeutil.FormatOffset(d)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			"+"+label, fmt.Sprintf("extend_time_%d_%s", reservationID, label)))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		row,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Нет, завершаю", fmt.Sprintf("decline_extend_%d", reservationID)),
		},
	)
}

// reservationListKeyboard renders one button per reservation with the
// given callback prefix, used by /cancel, /finish, /extend and /cancelany.
func reservationListKeyboard(reservations []models.Reservation, prefix string, withOwner bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, b := range reservations {
		label := fmt.Sprintf("%s %s %s-%s",
			b.ResourceName,
			b.Date.Format(timeutil.DateDisplay),
			b.TimeStart.Format(timeutil.ClockFormat),
			b.TimeEnd.Format(timeutil.ClockFormat))
		if withOwner {
			label = b.UserName + ": " + label
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", prefix, b.ID)),
		})
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func resourceListKeyboard(resources []models.Resource, prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range resources {
		label := fmt.Sprintf("%s / %s", r.Category, r.Name)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", prefix, r.ID)),
		})
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func registrationKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("reg_confirm_%d", userID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("reg_decline_%d", userID)),
		),
	)
}
