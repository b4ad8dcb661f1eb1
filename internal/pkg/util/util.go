package util

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// GetCurrentAbPathByExecutable 获取当前执行程序所在的绝对路径
func GetCurrentAbPathByExecutable() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	res, _ := filepath.EvalSymlinks(filepath.Dir(exePath))
	return res, nil
}

// ResolvePath 将相对路径转换为相对于baseDir的绝对路径，空路径原样返回
func ResolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ParseMillis 解析毫秒时间戳参数，为空时返回def
func ParseMillis(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// NowMillis 当前的毫秒时间戳
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
