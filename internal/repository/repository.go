package repository

import "errors"

// ErrNotFound 实体不存在（区别于基础设施错误，调用方可据此区分"无数据"与"依赖故障"）
var ErrNotFound = errors.New("entity not found")
