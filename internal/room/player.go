package room

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinNameLength 名稱最短長度（以 rune 計）
	MinNameLength = 2
	// MaxNameLength 名稱最長長度（以 rune 計）
	MaxNameLength = 15
)

// Player 房間內的玩家，ID 即連線 ID
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// PlayerView 對外的玩家快照
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Host  bool   `json:"host"`
}

// SanitizeName 清理顯示名稱：去掉控制字元與 HTML 敏感字元，連續空白壓成一個
func SanitizeName(raw string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r), !unicode.IsPrint(r), strings.ContainsRune("<>\"'&`", r):
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validName 長度檢查，name 必須已經清理過
func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= MinNameLength && n <= MaxNameLength
}

// defaultName 建房者的自動名稱
func defaultName(slot int) string {
	return "Игрок " + strconv.Itoa(slot)
}
