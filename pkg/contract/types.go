package contract

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// ArtifactID: 与 FileID 等价的持久化工件标识（语义别名）。
// 说明：Writer 使用 ArtifactID 强调“结果工件”（归档文件、合并输出），表示上与 FileID 复用。
type ArtifactID = FileID

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string
