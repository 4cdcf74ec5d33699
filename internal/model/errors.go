// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, scheme, application, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeMissingFields        = "MISSING_FIELDS"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeInvalidFilter        = "INVALID_FILTER"
	ErrCodeCatalogEntryNotFound = "CATALOG_ENTRY_NOT_FOUND"
	ErrCodeSchemeNotFound       = "SCHEME_NOT_FOUND"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeApplicationNotFound  = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeNoDocuments          = "NO_DOCUMENTS"
	ErrCodeUploadTooLarge       = "UPLOAD_TOO_LARGE"
	ErrCodeInvalidProfile       = "INVALID_PROFILE"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "The request body could not be parsed.",
		Category: "validation",
		Action:   "Send a well-formed JSON request.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Log in and retry with a valid bearer token.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action.",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Log in instead, or register with a different email.",
	}
}

// NewMissingFieldsError は必須項目不足エラーを生成する。
func NewMissingFieldsError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingFields,
		Message:  fmt.Sprintf("Required fields are missing: %v", fields),
		Category: "validation",
		Action:   "Fill in every required field.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewInvalidFilterError は無効なカタログフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid filter: %s", filter),
		Category: "validation",
		Action:   "Use one of all, central or region.",
	}
}

// NewCatalogEntryNotFoundError はカタログに該当スキームが無い場合のエラーを生成する。
func NewCatalogEntryNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogEntryNotFound,
		Message:  fmt.Sprintf("No scheme named %q in the catalog.", name),
		Category: "scheme",
		Action:   "List the catalog to see available scheme names.",
	}
}

// NewSchemeNotFoundError はスキームが見つからない場合のエラーを生成する。
func NewSchemeNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSchemeNotFound,
		Message:  fmt.Sprintf("Scheme not found: %s", id),
		Category: "scheme",
		Action:   "Check the scheme ID.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter a URL starting with http:// or https://.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "The link points to a disallowed address.",
		Category: "validation",
		Action:   "Use a public website address. Local and private network addresses are not allowed.",
	}
}

// NewApplicationNotFoundError は申請が見つからない場合のエラーを生成する。
func NewApplicationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("Application not found: %s", id),
		Category: "application",
		Action:   "Check the application ID.",
	}
}

// NewInvalidStatusError は無効な申請ステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Invalid status: %s", status),
		Category: "validation",
		Action:   "Use one of pending, approved or rejected.",
	}
}

// NewNoDocumentsError は添付書類なしエラーを生成する。
func NewNoDocumentsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoDocuments,
		Message:  "At least one document must be uploaded.",
		Category: "application",
		Action:   "Attach the required documents and submit again.",
	}
}

// NewUploadTooLargeError はアップロードサイズ超過エラーを生成する。
func NewUploadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("The upload exceeds the %d byte limit.", limit),
		Category: "application",
		Action:   "Compress or split the documents and try again.",
	}
}

// NewInvalidProfileError は適格性判定用プロフィールの検証エラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("Invalid profile: %s", reason),
		Category: "validation",
		Action:   "Age must be between 10 and 120 and income must be positive.",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "The message is empty.",
		Category: "validation",
		Action:   "Type a message or tap one of the suggested replies.",
	}
}
