package auth

// Caller 请求方身份，匿名是合法状态而不是错误
type Caller struct {
	subject       string
	authenticated bool
}

// Anonymous 匿名请求方
func Anonymous() Caller {
	return Caller{}
}

// Authenticated 已验证身份的请求方
func Authenticated(subject string) Caller {
	return Caller{subject: subject, authenticated: true}
}

// IsAnonymous 是否为匿名请求方
func (c Caller) IsAnonymous() bool {
	return !c.authenticated
}

// Subject 身份提供方的 subject id，匿名时为空字符串
func (c Caller) Subject() string {
	return c.subject
}
