package dbconn

import (
	"errors"
	"reflect"
)

type MockGormWrapper interface {
	GormWrapper
	Created() []interface{}
	Chain() *QueryChain
	SetError(error) MockGormWrapper
	SetResult(interface{}) MockGormWrapper
	SetRowsAffected(int64) MockGormWrapper
}

// QueryChain records the calls made against a mock, in the order made.
type QueryChain struct {
	Where    []WhereQuery
	Order    interface{}
	Limit    int
	Unscoped bool
	Deleted  []interface{}
}

type WhereQuery struct {
	Query interface{}
	Args  []interface{}
}

type mockGormWrapper struct {
	error        error
	created      []interface{}
	chain        *QueryChain
	result       interface{}
	rowsAffected int64
}

func Mock() MockGormWrapper {
	return &mockGormWrapper{chain: &QueryChain{}}
}

func (w *mockGormWrapper) Created() []interface{} {
	return w.created
}

func (w *mockGormWrapper) Chain() *QueryChain {
	return w.chain
}

func (w *mockGormWrapper) SetError(e error) MockGormWrapper {
	w.error = e
	return w
}

func (w *mockGormWrapper) SetResult(r interface{}) MockGormWrapper {
	w.result = r
	return w
}

func (w *mockGormWrapper) SetRowsAffected(n int64) MockGormWrapper {
	w.rowsAffected = n
	return w
}

func (w *mockGormWrapper) Error() error {
	return w.error
}

func (w *mockGormWrapper) RowsAffected() int64 {
	return w.rowsAffected
}

func (w *mockGormWrapper) Create(value interface{}) GormWrapper {
	if w.error == nil {
		w.created = append(w.created, value)
	}
	return w
}

func (w *mockGormWrapper) Where(query interface{}, args ...interface{}) GormWrapper {
	w.chain.Where = append(w.chain.Where, WhereQuery{Query: query, Args: args})
	return w
}

func (w *mockGormWrapper) Order(value interface{}) GormWrapper {
	w.chain.Order = value
	return w
}

func (w *mockGormWrapper) Limit(limit int) GormWrapper {
	w.chain.Limit = limit
	return w
}

func (w *mockGormWrapper) Unscoped() GormWrapper {
	w.chain.Unscoped = true
	return w
}

func (w *mockGormWrapper) Find(dest interface{}, conds ...interface{}) GormWrapper {
	if w.result == nil {
		return w
	}
	err := Replace(dest, w.result)
	if w.error == nil {
		w.error = err
	}
	return w
}

func (w *mockGormWrapper) Delete(value interface{}, conds ...interface{}) GormWrapper {
	if w.error == nil {
		w.chain.Deleted = append(w.chain.Deleted, value)
	}
	return w
}

func (w *mockGormWrapper) Close() error {
	return nil
}

func Replace(i, v interface{}) error {
	val := reflect.ValueOf(i)
	if val.Kind() != reflect.Ptr {
		return errors.New("not a pointer")
	}

	val = val.Elem()

	newVal := reflect.Indirect(reflect.ValueOf(v))

	if !val.Type().AssignableTo(newVal.Type()) {
		return errors.New("mismatched types")
	}

	val.Set(newVal)
	return nil
}
