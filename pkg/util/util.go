// Package util 提供通用工具函数
package util

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword 使用 bcrypt 哈希密码
// bcrypt 是一种专门为密码哈希设计的算法，自动添加盐值
// 参数:
//   - password: 明文密码
//
// 返回:
//   - string: 密码哈希值
//   - error: 哈希错误
func HashPassword(password string) (string, error) {
	// bcrypt.DefaultCost 是默认的计算成本（10）
	// 成本越高，计算越慢，安全性越高
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 验证密码是否匹配
// 参数:
//   - password: 用户输入的明文密码
//   - hash: 数据库中存储的哈希值
//
// 返回:
//   - bool: 是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateUUID 生成 UUID
// 使用 Google 的 uuid 库生成 UUID v4
// 返回:
//   - string: UUID 字符串（不含连字符）
func GenerateUUID() string {
	// uuid.New() 生成 UUID v4（随机生成）
	// String() 返回格式：xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
	// 我们去掉连字符使其更紧凑
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TruncateString 截断字符串到指定长度
// 如果字符串超过指定长度，截断并添加 "..."
// 参数:
//   - s: 原字符串
//   - maxLen: 最大长度
//
// 返回:
//   - string: 截断后的字符串
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
