package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidElement = errors.New("invalid element")
	ErrInvalidOp      = errors.New("invalid element op")
)

// Element 캔버스 요소 (shape 또는 line)
//
// 알 수 없는 필드는 원본 JSON 값 그대로 보존되고, "id"만 서버가 관리한다.
type Element struct {
	ID        string
	CreatedBy string
	fields    map[string]json.RawMessage
}

// MarshalJSON 보존된 필드 + id 직렬화
func (e Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.fields)+1)
	for k, v := range e.fields {
		out[k] = v
	}
	if e.ID != "" {
		id, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		out["id"] = id
	}
	return json.Marshal(out)
}

// UnmarshalJSON 객체를 필드 맵으로 파싱
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: element must be an object", ErrInvalidElement)
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidElement, k, err)
		}
		fields[k] = buf.Bytes()
	}

	e.ID = ""
	if v, ok := fields["id"]; ok {
		if !bytes.Equal(v, []byte("null")) {
			if err := json.Unmarshal(v, &e.ID); err != nil {
				return fmt.Errorf("%w: id must be a string", ErrInvalidElement)
			}
		}
		delete(fields, "id")
	}

	e.CreatedBy = ""
	if v, ok := fields["createdBy"]; ok {
		e.CreatedBy = authorOf(v)
	}
	e.fields = fields
	return nil
}

// authorOf createdBy 값을 문자열로 정규화 (문자열 또는 숫자 허용)
func authorOf(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// EnsureID id가 없으면 UUID를 부여한다. 부여했으면 true.
func (e *Element) EnsureID() bool {
	if e.ID != "" {
		return false
	}
	e.ID = uuid.New().String()
	return true
}

// Field 원본 필드 조회
func (e Element) Field(name string) (json.RawMessage, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Type 도형 종류 (line이면 빈 값)
func (e Element) Type() ShapeType {
	var t string
	if v, ok := e.fields["type"]; ok {
		_ = json.Unmarshal(v, &t)
	}
	return ShapeType(t)
}

// Equal 내용 비교 (id 포함)
func (e Element) Equal(o Element) bool {
	if e.ID != o.ID || len(e.fields) != len(o.fields) {
		return false
	}
	for k, v := range e.fields {
		ov, ok := o.fields[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// SameContent id를 제외한 내용 비교
func (e Element) SameContent(o Element) bool {
	o.ID = e.ID
	return e.Equal(o)
}

// WithAuthor createdBy가 없으면 author로 채운 복사본 반환
func (e Element) WithAuthor(author string) Element {
	if _, ok := e.fields["createdBy"]; ok || author == "" {
		return e
	}
	e = e.Clone()
	raw, _ := json.Marshal(author)
	e.fields["createdBy"] = raw
	e.CreatedBy = author
	return e
}

// WithAuthorOf stored의 createdBy를 그대로 이어받은 복사본. 기존 요소의 작성자는 클라이언트가 바꿀 수 없다.
func (e Element) WithAuthorOf(stored Element) Element {
	e = e.Clone()
	if raw, ok := stored.fields["createdBy"]; ok {
		e.fields["createdBy"] = raw
	} else {
		delete(e.fields, "createdBy")
	}
	e.CreatedBy = stored.CreatedBy
	return e
}

// Clone 필드 맵 복사 (값은 불변으로 취급)
func (e Element) Clone() Element {
	fields := make(map[string]json.RawMessage, len(e.fields))
	for k, v := range e.fields {
		fields[k] = v
	}
	e.fields = fields
	return e
}

func (e Element) number(name string) bool {
	v, ok := e.fields[name]
	if !ok {
		return false
	}
	var f float64
	return json.Unmarshal(v, &f) == nil
}

func (e Element) point(name string) bool {
	v, ok := e.fields[name]
	if !ok {
		return false
	}
	var p struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(v, &p); err != nil {
		return false
	}
	return p.X != nil && p.Y != nil
}

func (e Element) requireNumbers(names ...string) error {
	for _, name := range names {
		if !e.number(name) {
			return fmt.Errorf("%w: %s requires numeric %q", ErrInvalidElement, e.Type(), name)
		}
	}
	return nil
}

func (e Element) requireString(name string) error {
	v, ok := e.fields[name]
	var s string
	if !ok || json.Unmarshal(v, &s) != nil {
		return fmt.Errorf("%w: %s requires string %q", ErrInvalidElement, e.Type(), name)
	}
	return nil
}

// ValidateShape 도형 종류별 기하 필드 검증
func (e Element) ValidateShape() error {
	switch e.Type() {
	case ShapeRect:
		return e.requireNumbers("x", "y", "width", "height")
	case ShapeCircle:
		return e.requireNumbers("x", "y", "radius")
	case ShapeEllipse:
		return e.requireNumbers("x", "y", "radiusX", "radiusY")
	case ShapeText, ShapeSticky:
		if err := e.requireNumbers("x", "y"); err != nil {
			return err
		}
		return e.requireString("text")
	case ShapeArrow:
		if !e.point("from") || !e.point("to") {
			return fmt.Errorf("%w: arrow requires from/to points", ErrInvalidElement)
		}
		return nil
	case "":
		return fmt.Errorf("%w: shape type is required", ErrInvalidElement)
	default:
		return fmt.Errorf("%w: unknown shape type %q", ErrInvalidElement, e.Type())
	}
}

// ValidateLine 폴리라인 좌표 검증 (짝수 길이, 최소 한 점)
func (e Element) ValidateLine() error {
	v, ok := e.fields["points"]
	if !ok {
		return fmt.Errorf("%w: line requires points", ErrInvalidElement)
	}
	var points []float64
	if err := json.Unmarshal(v, &points); err != nil {
		return fmt.Errorf("%w: line points must be numbers", ErrInvalidElement)
	}
	if len(points) < 2 || len(points)%2 != 0 {
		return fmt.Errorf("%w: line points must be coordinate pairs", ErrInvalidElement)
	}
	return nil
}

// Validate 종류에 맞는 검증
func (e Element) Validate(kind ElementKind) error {
	if kind == KindLine {
		return e.ValidateLine()
	}
	return e.ValidateShape()
}

// Document 보드 문서 (shapes, lines)
type Document struct {
	Shapes []Element `json:"shapes"`
	Lines  []Element `json:"lines"`
}

// Clone 깊은 복사
func (d Document) Clone() Document {
	return Document{
		Shapes: cloneElements(d.Shapes),
		Lines:  cloneElements(d.Lines),
	}
}

// Equal 내용 비교
func (d Document) Equal(o Document) bool {
	return ElementsEqual(d.Shapes, o.Shapes) && ElementsEqual(d.Lines, o.Lines)
}

// ElementsEqual 배열 내용 비교
func ElementsEqual(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func cloneElements(in []Element) []Element {
	out := make([]Element, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// ParseDocument 저장된 JSONB 문서 파싱 (비어 있으면 빈 문서)
func ParseDocument(data *string) (Document, error) {
	doc := Document{Shapes: []Element{}, Lines: []Element{}}
	if data == nil || *data == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(*data), &doc); err != nil {
		return Document{}, err
	}
	if doc.Shapes == nil {
		doc.Shapes = []Element{}
	}
	if doc.Lines == nil {
		doc.Lines = []Element{}
	}
	return doc, nil
}

// ElementOp 요소 단위 연산
type ElementOp struct {
	Op      OpType      `json:"op"`
	Kind    ElementKind `json:"kind"`
	ID      string      `json:"id,omitempty"`
	Index   *int        `json:"index,omitempty"`
	Element *Element    `json:"element,omitempty"`
}

// TargetID 연산 대상 id (op.id 우선, 없으면 element.id)
func (op ElementOp) TargetID() string {
	if op.ID != "" {
		return op.ID
	}
	if op.Element != nil {
		return op.Element.ID
	}
	return ""
}

// Validate 연산 형식 검증
func (op ElementOp) Validate() error {
	if op.Kind != KindShape && op.Kind != KindLine {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOp, op.Kind)
	}
	switch op.Op {
	case OpCreate:
		if op.Element == nil {
			return fmt.Errorf("%w: create requires element", ErrInvalidOp)
		}
		if op.Index != nil && *op.Index < 0 {
			return fmt.Errorf("%w: negative index", ErrInvalidOp)
		}
		return op.Element.Validate(op.Kind)
	case OpUpdate:
		if op.Element == nil || op.TargetID() == "" {
			return fmt.Errorf("%w: update requires id and element", ErrInvalidOp)
		}
		return op.Element.Validate(op.Kind)
	case OpDelete:
		if op.TargetID() == "" {
			return fmt.Errorf("%w: delete requires id", ErrInvalidOp)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidOp, op.Op)
	}
}

// MaxChatUserLength chat_messages.user 컬럼 길이 (varchar(100))
const MaxChatUserLength = 100

// ChatRecord 저장된 채팅 메시지 (전송 형식)
type ChatRecord struct {
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
