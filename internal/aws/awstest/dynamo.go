// Package awstest provides in-memory stand-ins for the AWS clients used by
// the stores. They understand the small expression dialect the stores emit.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

type index struct {
	hashKey  string
	rangeKey string
}

type table struct {
	hashKey string
	items   map[string]map[string]types.AttributeValue
	order   []string
	indexes map[string]index
}

// Dynamo is an in-memory DynamoDB keyed by a single hash attribute per table.
type Dynamo struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int

	// Err, when set, is returned by every call.
	Err error
}

func NewDynamo() *Dynamo {
	return &Dynamo{
		tables: map[string]*table{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table with its hash key attribute.
func (d *Dynamo) CreateTable(name, hashKey string) *Dynamo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[name] = &table{
		hashKey: hashKey,
		items:   map[string]map[string]types.AttributeValue{},
		indexes: map[string]index{},
	}
	return d
}

// CreateIndex registers a secondary index used by Query.
func (d *Dynamo) CreateIndex(tableName, indexName, hashKey, rangeKey string) *Dynamo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[tableName].indexes[indexName] = index{hashKey: hashKey, rangeKey: rangeKey}
	return d
}

// Calls reports how many times op was invoked.
func (d *Dynamo) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Item returns a stored item or nil.
func (d *Dynamo) Item(tableName, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[tableName]
	if !ok {
		return nil
	}
	return t.items[key]
}

// Len returns the number of items in a table.
func (d *Dynamo) Len(tableName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// Seed writes an item directly, bypassing conditions.
func (d *Dynamo) Seed(tableName string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[tableName]
	t.put(item)
}

func (d *Dynamo) begin(op, tableName string) (*table, error) {
	d.calls[op]++
	if d.Err != nil {
		return nil, d.Err
	}
	if tableName == "" {
		return nil, nil
	}
	t, ok := d.tables[tableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + tableName)}
	}
	return t, nil
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	av, ok := item[t.hashKey]
	if !ok {
		return "", fmt.Errorf("missing key attribute %q", t.hashKey)
	}
	return scalar(av), nil
}

func (t *table) put(item map[string]types.AttributeValue) {
	k, _ := t.keyOf(item)
	if _, exists := t.items[k]; !exists {
		t.order = append(t.order, k)
	}
	t.items[k] = item
}

func (t *table) remove(k string) {
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("GetItem", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("PutItem", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(sdkaws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	t.put(clone(params.Item))
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("UpdateItem", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	updated, err := t.applyUpdate(params.Key, sdkaws.ToString(params.UpdateExpression), sdkaws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: clone(updated)}, nil
}

func (t *table) applyUpdate(key map[string]types.AttributeValue, update, cond string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	k, err := t.keyOf(key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(cond, names, values, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	next := clone(current)
	if next == nil {
		next = clone(key)
	}
	if err := applySet(update, names, values, next); err != nil {
		return nil, err
	}
	t.put(next)
	return next, nil
}

func (d *Dynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("DeleteItem", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(sdkaws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	t.remove(k)
	out := &dyn.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (d *Dynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("Query", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	idx := index{hashKey: t.hashKey}
	if name := sdkaws.ToString(params.IndexName); name != "" {
		var ok bool
		if idx, ok = t.indexes[name]; !ok {
			return nil, fmt.Errorf("index not found: %s", name)
		}
	}
	keyCond := sdkaws.ToString(params.KeyConditionExpression)
	var matched []map[string]types.AttributeValue
	for _, k := range t.order {
		item := t.items[k]
		ok, err := evalCondition(keyCond, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, has := item[idx.hashKey]; !has {
			continue
		}
		if params.FilterExpression != nil {
			ok, err = evalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, clone(item))
	}
	if idx.rangeKey != "" {
		forward := params.ScanIndexForward == nil || *params.ScanIndexForward
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][idx.rangeKey], matched[j][idx.rangeKey])
			if forward {
				return c < 0
			}
			return c > 0
		})
	}
	return &dyn.QueryOutput{Items: matched, Count: int32(len(matched))}, nil
}

func (d *Dynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.begin("Scan", sdkaws.ToString(params.TableName))
	if err != nil {
		return nil, err
	}
	var items []map[string]types.AttributeValue
	for _, k := range t.order {
		item := t.items[k]
		ok, err := evalCondition(sdkaws.ToString(params.FilterExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, clone(item))
		}
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (d *Dynamo) BatchGetItem(ctx context.Context, params *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.begin("BatchGetItem", ""); err != nil {
		return nil, err
	}
	out := &dyn.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for name, ka := range params.RequestItems {
		t, ok := d.tables[name]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + name)}
		}
		for _, key := range ka.Keys {
			k, err := t.keyOf(key)
			if err != nil {
				return nil, err
			}
			if item, ok := t.items[k]; ok {
				out.Responses[name] = append(out.Responses[name], clone(item))
			}
		}
	}
	return out, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.begin("TransactWriteItems", ""); err != nil {
		return nil, err
	}

	// all conditions are checked before anything is written
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		name, key, cond, names, values := describeTransactItem(it)
		t, ok := d.tables[name]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + name)}
		}
		k, err := t.keyOf(key)
		if err != nil {
			return nil, err
		}
		ok, err = evalCondition(cond, names, values, t.items[k])
		if err != nil {
			return nil, err
		}
		reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: sdkaws.String("ConditionalCheckFailed")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			d.tables[sdkaws.ToString(it.Put.TableName)].put(clone(it.Put.Item))
		case it.Delete != nil:
			t := d.tables[sdkaws.ToString(it.Delete.TableName)]
			k, _ := t.keyOf(it.Delete.Key)
			t.remove(k)
		case it.Update != nil:
			t := d.tables[sdkaws.ToString(it.Update.TableName)]
			if _, err := t.applyUpdate(it.Update.Key, sdkaws.ToString(it.Update.UpdateExpression), "", it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func describeTransactItem(it types.TransactWriteItem) (string, map[string]types.AttributeValue, string, map[string]string, map[string]types.AttributeValue) {
	switch {
	case it.Put != nil:
		return sdkaws.ToString(it.Put.TableName), it.Put.Item, sdkaws.ToString(it.Put.ConditionExpression), it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
	case it.Delete != nil:
		return sdkaws.ToString(it.Delete.TableName), it.Delete.Key, sdkaws.ToString(it.Delete.ConditionExpression), it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
	case it.Update != nil:
		return sdkaws.ToString(it.Update.TableName), it.Update.Key, sdkaws.ToString(it.Update.ConditionExpression), it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
	case it.ConditionCheck != nil:
		return sdkaws.ToString(it.ConditionCheck.TableName), it.ConditionCheck.Key, sdkaws.ToString(it.ConditionCheck.ConditionExpression), it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
	}
	return "", nil, "", nil, nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

// evalCondition supports OR/AND of attribute_exists(a), attribute_not_exists(a),
// a = :v and a <> :v. An empty expression is true.
func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, disjunct := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(disjunct, " AND ") {
			ok, err := evalTerm(strings.Trim(strings.TrimSpace(term), "()"), names, values, item)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(term, "attribute_not_exists("):
		_, ok := item[resolveName(strings.TrimPrefix(term, "attribute_not_exists("), names)]
		return !ok, nil
	case strings.HasPrefix(term, "attribute_exists("):
		_, ok := item[resolveName(strings.TrimPrefix(term, "attribute_exists("), names)]
		return ok, nil
	}
	for _, op := range []string{"<>", "="} {
		if lhs, rhs, found := strings.Cut(term, " "+op+" "); found {
			want, ok := values[strings.TrimSpace(rhs)]
			if !ok {
				return false, fmt.Errorf("missing expression value %s", rhs)
			}
			got, has := item[resolveName(strings.TrimSpace(lhs), names)]
			equal := has && compare(got, want) == 0
			if op == "=" {
				return equal, nil
			}
			return !equal, nil
		}
	}
	return false, fmt.Errorf("unsupported condition %q", term)
}

// applySet handles "SET a = :v, b = if_not_exists(b, :z) + :n".
func applySet(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, clause := range splitTopLevel(strings.TrimPrefix(expr, "SET ")) {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return fmt.Errorf("bad SET clause %q", clause)
		}
		v, err := evalOperand(strings.TrimSpace(rhs), names, values, item)
		if err != nil {
			return err
		}
		item[resolveName(strings.TrimSpace(lhs), names)] = v
	}
	return nil
}

func evalOperand(rhs string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	if left, right, ok := strings.Cut(rhs, " + "); ok {
		a, err := evalOperand(strings.TrimSpace(left), names, values, item)
		if err != nil {
			return nil, err
		}
		b, err := evalOperand(strings.TrimSpace(right), names, values, item)
		if err != nil {
			return nil, err
		}
		x, err1 := decimal.NewFromString(scalar(a))
		y, err2 := decimal.NewFromString(scalar(b))
		if err := errors.Join(err1, err2); err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: x.Add(y).String()}, nil
	}
	if strings.HasPrefix(rhs, "if_not_exists(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(rhs, "if_not_exists("), ")")
		attr, fallback, _ := strings.Cut(inner, ",")
		if v, ok := item[resolveName(strings.TrimSpace(attr), names)]; ok {
			return v, nil
		}
		return evalOperand(strings.TrimSpace(fallback), names, values, item)
	}
	if strings.HasPrefix(rhs, ":") {
		v, ok := values[rhs]
		if !ok {
			return nil, fmt.Errorf("missing expression value %s", rhs)
		}
		return v, nil
	}
	v, ok := item[resolveName(rhs, names)]
	if !ok {
		return nil, fmt.Errorf("attribute %s not present", rhs)
	}
	return v, nil
}

func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func resolveName(n string, names map[string]string) string {
	n = strings.TrimSuffix(strings.TrimSpace(n), ")")
	if strings.HasPrefix(n, "#") {
		if real, ok := names[n]; ok {
			return real
		}
	}
	return n
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprint(v.Value)
	}
	return fmt.Sprintf("%v", av)
}

func compare(a, b types.AttributeValue) int {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		x, err1 := decimal.NewFromString(an.Value)
		y, err2 := decimal.NewFromString(bn.Value)
		if err1 == nil && err2 == nil {
			return x.Cmp(y)
		}
	}
	return strings.Compare(scalar(a), scalar(b))
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
