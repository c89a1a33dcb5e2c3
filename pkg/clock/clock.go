package clock

import "time"

// Clock 时钟抽象：所有时段判定都以固定时区的墙上时间为准
// 生产环境使用 Local；测试中替换为可控的假时钟
type Clock interface {
	Now() time.Time
}

// Local 真实时钟，返回指定时区的当前时间
type Local struct {
	loc *time.Location
}

// NewLocal 创建固定时区的真实时钟
func NewLocal(loc *time.Location) *Local {
	return &Local{loc: loc}
}

// Now 返回当前时间（固定时区）
func (c *Local) Now() time.Time {
	return time.Now().In(c.loc)
}
