package errs

import "errors"

// 全局错误类型定义。各层通过 fmt.Errorf("...: %w", errs.ErrXxx) 包装，
// 边界处使用 errors.Is 判断错误类别。
var (
	// ErrValidation 输入校验失败（文件过大、扩展名不支持、参数缺失等）
	ErrValidation = errors.New("validation failed")

	// ErrEngineLoad 转码引擎初始化失败（找不到 ffmpeg/ffprobe 可执行文件），可整体重试
	ErrEngineLoad = errors.New("transcoding engine load failed")

	// ErrConversion 单个文件转码失败
	ErrConversion = errors.New("audio conversion failed")

	// ErrDurationProbe 音频时长探测失败（文件损坏或不可读）
	ErrDurationProbe = errors.New("duration probe failed")

	// ErrConfiguration 配置错误（存储凭证/端点缺失），属运维级致命错误，不重试、不透传给终端用户
	ErrConfiguration = errors.New("storage configuration error")

	// ErrNotAuthorized 无权限执行该操作
	ErrNotAuthorized = errors.New("not authorized")

	// ErrRateLimited 触发滑动窗口限流
	ErrRateLimited = errors.New("too many requests")

	// ErrUpload 对象传输失败，整个上传会话作废，由调用方决定是否从头重试
	ErrUpload = errors.New("object upload failed")

	// ErrNotFound 请求的记录不存在
	ErrNotFound = errors.New("not found")
)
