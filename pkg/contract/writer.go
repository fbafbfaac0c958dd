package contract

import (
	"context"
	"io"
)

// Writer: 将字节流持久化到目标介质（文件系统）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入（O(1) 额外内存），按字节透传，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）；
//  5. 目标已存在时的行为由实现的写出策略决定（覆盖/报错/追加）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// Locator: 可选接口，返回 ArtifactID 映射到的本地路径（供 Counter 等下游读取）。
type Locator interface {
	Locate(id ArtifactID) (string, error)
}

// Preflighter: 可选接口，在任何阶段开始前确认 id 可按写出策略写入
// （如 error 策略下目标已存在即失败），避免先下载再被拒绝。
type Preflighter interface {
	Preflight(id ArtifactID) error
}
