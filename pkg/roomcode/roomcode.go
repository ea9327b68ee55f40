// Package roomcode 產生與驗證房間加入碼。
//
// 加入碼給玩家手動輸入，所以字母表排除了容易看錯的 0/O、1/I。
// 字母表恰好 32 個符號，單一隨機位元組取低 5 位即為均勻分佈。
package roomcode

import (
	"crypto/rand"
	"io"
	"strings"
)

const (
	// Length 加入碼長度
	Length = 6

	// Alphabet A-Z 去掉 O、I，加上 2-9
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Generator 產生加入碼
//
// Generator 不保證與現有房間不重複，由呼叫者在碰撞時重試。
type Generator struct {
	src io.Reader
}

// NewGenerator 使用 crypto/rand 作為隨機來源
func NewGenerator() *Generator {
	return &Generator{src: rand.Reader}
}

// NewGeneratorFrom 使用指定的隨機來源（測試用）
func NewGeneratorFrom(src io.Reader) *Generator {
	return &Generator{src: src}
}

// Generate 產生一組加入碼
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(g.src, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = Alphabet[b&31]
	}
	return string(buf), nil
}

// Validate 檢查加入碼格式（長度與字元集），不查詢任何房間
func Validate(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize 整理使用者輸入：去除空白並轉大寫
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
