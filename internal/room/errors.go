package room

import apperrors "github.com/koopa0/system-design/14-party-relay/pkg/errors"

// 房間操作錯誤；訊息會原樣回給客戶端
var (
	ErrUnknownGameKind = apperrors.New(apperrors.ErrCodeInvalidInput, "Неизвестная игра")
	ErrInvalidRoomCode = apperrors.New(apperrors.ErrCodeInvalidInput, "Неверный код комнаты")
	ErrInvalidName     = apperrors.New(apperrors.ErrCodeInvalidInput, "Имя должно быть от 2 до 15 символов")
	ErrAlreadyInRoom   = apperrors.New(apperrors.ErrCodeInvalidInput, "Вы уже в комнате")
	ErrWrongGame       = apperrors.New(apperrors.ErrCodeInvalidInput, "Действие недоступно в этой игре")
	ErrInvalidWord     = apperrors.New(apperrors.ErrCodeInvalidInput, "Слово должно содержать от 2 до 32 символов")
	ErrRoundNotReady   = apperrors.New(apperrors.ErrCodeInvalidInput, "Раунд не ожидает слова")
	ErrNameTaken       = apperrors.New(apperrors.ErrCodeNameTaken, "Имя уже занято")
	ErrRoomNotFound    = apperrors.New(apperrors.ErrCodeNotFound, "Комната не найдена")
	ErrNotInRoom       = apperrors.New(apperrors.ErrCodeNotFound, "Вы не в комнате")
	ErrRoomFull        = apperrors.New(apperrors.ErrCodeRoomFull, "Комната полная")
	ErrUnauthorized    = apperrors.New(apperrors.ErrCodeUnauthorized, "Недостаточно прав")
	ErrCodeExhausted   = apperrors.New(apperrors.ErrCodeInternal, "не удалось выделить код комнаты")
)
