package model

import "strings"

// Role 보드 접근 권한
type Role string

const (
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// String 메서드
func (r Role) String() string {
	return string(r)
}

// CanEdit 편집 가능 여부
func (r Role) CanEdit() bool {
	return r == RoleEditor
}

// Valid 알려진 권한인지 확인
func (r Role) Valid() bool {
	return r == RoleEditor || r == RoleViewer
}

// ShapeType 도형 종류
type ShapeType string

const (
	ShapeRect    ShapeType = "rect"
	ShapeCircle  ShapeType = "circle"
	ShapeEllipse ShapeType = "ellipse"
	ShapeText    ShapeType = "text"
	ShapeSticky  ShapeType = "sticky"
	ShapeArrow   ShapeType = "arrow"
)

func (t ShapeType) String() string {
	return string(t)
}

// ElementKind 문서 요소 분류 (shapes / lines)
type ElementKind string

const (
	KindShape ElementKind = "shape"
	KindLine  ElementKind = "line"
)

// OpType 요소 단위 연산 종류
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// ParseRole 저장된 permission 문자열을 Role로 변환 (대소문자, 구버전 값 허용)
func ParseRole(permission string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(permission)) {
	case "editor", "edit", "write", "owner":
		return RoleEditor, true
	case "viewer", "view", "read":
		return RoleViewer, true
	default:
		return "", false
	}
}
