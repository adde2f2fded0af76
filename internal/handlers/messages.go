package handlers

// User-facing texts. All outbound wording lives here so handlers stay
// free of string literals.
const (
	msgInternalError    = "Произошла ошибка. Попробуйте ещё раз."
	msgNotRegistered    = "Вы не зарегистрированы. Отправьте /start для регистрации."
	msgAwaitingApproval = "Ваша заявка ещё не подтверждена администратором. Ожидайте."
	msgBlocked          = "Ваш аккаунт заблокирован. Обратитесь к администратору."
	msgAdminOnly        = "Эта команда доступна только администратору."

	msgEnterFullName   = "Здравствуйте! Для регистрации введите ваше ФИО:"
	msgNameTooShort    = "Пожалуйста, введите корректное ФИО:"
	msgRequestSent     = "Заявка на регистрацию отправлена администратору. Ожидайте подтверждения."
	msgAlreadyActive   = "Вы уже зарегистрированы. Для бронирования отправьте /booking"
	msgRegApproved     = "✅ Ваша регистрация подтверждена! Для бронирования отправьте /booking"
	msgRegDeclined     = "❌ Ваша заявка на регистрацию отклонена."
	msgRegAdminDone    = "Заявка обработана."
	msgNewRegRequest   = "Новая заявка на регистрацию:\n%s (id %d)"

	msgHelp = "Доступные команды:\n" +
		"/booking — забронировать оборудование\n" +
		"/mybookings — мои бронирования\n" +
		"/allbookings — все предстоящие бронирования\n" +
		"/cancel — отменить бронирование\n" +
		"/finish — завершить работу досрочно\n" +
		"/extend — продлить бронирование\n" +
		"/equipment — список оборудования\n" +
		"/datebookings — бронирования на дату\n" +
		"/resourcebookings — бронирования по оборудованию\n" +
		"/help — эта справка"

	msgHelpAdmin = "\n\nКоманды администратора:\n" +
		"/users — список пользователей\n" +
		"/addresource — добавить оборудование\n" +
		"/delresource — убрать оборудование\n" +
		"/cancelany — отменить любое бронирование\n" +
		"/schedule — пересобрать расписание уведомлений\n" +
		"/broadcast — рассылка всем пользователям"

	msgChooseCategory  = "Выберите категорию:"
	msgChooseResource  = "Выберите оборудование:"
	msgChooseDate      = "Выберите дату:"
	msgChooseSlot      = "Свободные интервалы на %s:"
	msgWholeDayFree    = "Весь день свободен. Выберите время начала:"
	msgChooseStart     = "Выберите время начала:"
	msgChooseDuration  = "Выберите длительность:"
	msgNoCategories    = "Оборудование пока не добавлено."
	msgNoResources     = "В этой категории нет оборудования."
	msgNoFreeSlots     = "На эту дату свободных интервалов нет. Выберите другую дату."
	msgConfirmSummary  = "Проверьте бронирование:\n\nОборудование: %s\nДата: %s\nВремя: %s - %s\n\nПодтвердить?"
	msgBookingCreated  = "✅ Бронирование создано:\n%s, %s, %s - %s\n\nЗа %d минут до начала придёт напоминание. Не забудьте подтвердить начало работы!"
	msgProcessStopped  = "Бронирование прервано."
	msgDialogStalled   = "Диалог прерван из-за неактивности. Начните заново: /booking"
	msgDialogBroken    = "Сообщение с кнопками недоступно, бронирование прервано. Начните заново: /booking"
	msgActionStale     = "Это действие больше не актуально."
	msgUseCurrentMenu  = "Используйте кнопки последнего сообщения."

	msgOverlap          = "❌ Интервал занят: %s - %s, %s. Выберите другое время."
	msgOutsideHours     = "❌ Время вне рабочих часов (%s - %s)."
	msgTimeInPast       = "❌ Это время уже прошло."
	msgLimitExceeded    = "❌ Превышена максимальная длительность бронирования."
	msgResourceInactive = "❌ Это оборудование больше недоступно."

	msgNotifyStart     = "⏰ Напоминание: в %s начинается ваша работа на %s.\n\nПодтвердите начало работы, иначе бронирование будет отменено через %d минут."
	msgConfirmButton   = "✅ Подтверждаю"
	msgStartConfirmed  = "✅ Начало работы подтверждено. Хорошей работы!"
	msgAutoCancelled   = "❌ Бронирование отменено: начало работы не было подтверждено."
	msgAutoCancelNote  = "Ваше бронирование %s на %s - %s отменено автоматически, так как вы не подтвердили начало работы."
	msgNotifyEnd       = "⏰ Ваша работа на %s заканчивается в %s."
	msgNotifyEndExtend = "⏰ Ваша работа на %s заканчивается в %s.\n\nПродлить?"
	msgExtendDeclined  = "Хорошо, завершите работу вовремя."
	msgExtended        = "✅ Бронирование продлено до %s."
	msgExtendBlocked   = "Продление недоступно: следующее время занято или рабочий день заканчивается."

	msgMyBookingsNone   = "У вас нет активных бронирований."
	msgMyBookingsHeader = "Ваши бронирования:\n"
	msgAllBookingsNone  = "Предстоящих бронирований нет."
	msgAllBookingsHead  = "Все бронирования:\n"
	msgChooseCancel     = "Выберите бронирование для отмены:"
	msgNothingToCancel  = "Нечего отменять: активных бронирований нет."
	msgCancelled        = "✅ Бронирование отменено: %s, %s - %s."
	msgChooseFinish     = "Выберите работу для завершения:"
	msgNothingToFinish  = "Сейчас у вас нет начатых работ."
	msgFinished         = "✅ Работа завершена. Спасибо!"
	msgChooseExtend     = "Выберите бронирование для продления:"
	msgNothingToExtend  = "Сейчас у вас нет начатых работ для продления."

	msgEquipmentHeader = "Оборудование:\n"
	msgDateForList     = "Выберите дату:"
	msgNoBookingsDate  = "На %s бронирований нет."
	msgDateListHeader  = "Бронирования на %s:\n"
	msgResourceForList = "Выберите оборудование:"
	msgNoBookingsRes   = "По этому оборудованию предстоящих бронирований нет."
	msgResListHeader   = "Бронирования, %s:\n"

	msgUsersHeader      = "Пользователи:\n"
	msgEnterResourceCategory = "Введите категорию нового оборудования:"
	msgEnterResourceName     = "Категория: %s\nВведите название:"
	msgEnterResourceNote     = "Введите примечание (или «-», если не нужно):"
	msgResourceAdded    = "✅ Оборудование добавлено: %s (%s)"
	msgResourceExists   = "❌ Такое оборудование уже есть в этой категории."
	msgChooseDelete     = "Выберите оборудование для удаления:"
	msgResourceRemoved  = "✅ Оборудование убрано из списка."
	msgChooseCancelAny  = "Выберите бронирование для отмены:"
	msgNoBookingsNow    = "Активных бронирований нет."
	msgScheduleHeader   = "Сейчас идут работы:\n"
	msgScheduleEmpty    = "Сейчас никто не работает."
	msgScheduleResynced = "Расписание уведомлений пересобрано: %d броней, %d задач."
	msgEnterBroadcast   = "Введите текст рассылки:"
	msgBroadcastSent    = "✅ Рассылка отправлена (%d получателей)."
	msgAdminCancelNote  = "❌ Ваше бронирование %s на %s - %s отменено администратором."
)
