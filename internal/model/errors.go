package model

import "errors"

// 저장소/권한 계층 공용 에러
var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrNotCollaborator = errors.New("user is not a collaborator of this board")
)
