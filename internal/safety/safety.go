// Package safety validates identifiers and SQL text before anything is
// sent to a database. It is pure computation over its inputs and the
// static protected-table set: no I/O, safe for any number of concurrent
// callers without synchronization.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Kind classifies a validation failure.
type Kind int

const (
	KindUnsafeIdentifier Kind = iota + 1
	KindForbiddenKeyword
	KindProtectedTable
	KindForbiddenStatementClass
	// KindMalformed marks SQL that PostgreSQL's own grammar rejects.
	// Callers report it as an invalid argument, not a policy violation.
	KindMalformed
)

// Violation is a validation failure with enough detail for direct display.
type Violation struct {
	Kind   Kind
	Detail string
}

func (v *Violation) Error() string { return v.Detail }

// identifierPattern accepts letters, digits, underscore, and the $/# chars
// PostgreSQL tolerates in object names, optionally schema-qualified with a
// single dot separator.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#]*(\.[A-Za-z_][A-Za-z0-9_$#]*)?$`)

// maxIdentifierLen bounds identifiers well past PostgreSQL's 63-byte limit
// so schema-qualified names still fit.
const maxIdentifierLen = 128

// forbiddenKeywords are DML/DDL keywords that must not appear in read-only
// SQL outside of string literals and comments.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"CREATE", "TRUNCATE", "GRANT", "REVOKE",
}

// Validator applies the safety policy. The protected-table set is fixed at
// construction and never mutated.
type Validator struct {
	protected map[string]struct{}
}

// NewValidator builds a Validator over the given protected table names.
// Matching is case-insensitive on the bare (unqualified) table name.
func NewValidator(protectedTables []string) *Validator {
	protected := make(map[string]struct{}, len(protectedTables))
	for _, t := range protectedTables {
		protected[strings.ToLower(bareName(t))] = struct{}{}
	}
	return &Validator{protected: protected}
}

// CheckIdentifier validates a table/column/object name against the safe
// identifier pattern.
func (v *Validator) CheckIdentifier(name string) error {
	if name == "" {
		return &Violation{Kind: KindUnsafeIdentifier, Detail: "identifier is empty"}
	}
	if len(name) > maxIdentifierLen {
		return &Violation{Kind: KindUnsafeIdentifier, Detail: fmt.Sprintf("identifier exceeds %d bytes", maxIdentifierLen)}
	}
	if !identifierPattern.MatchString(name) {
		return &Violation{Kind: KindUnsafeIdentifier, Detail: fmt.Sprintf("unsafe identifier %q: only letters, digits, underscore, $, #, and a single schema qualifier are allowed", name)}
	}
	return nil
}

// CheckReadOnly validates SQL intended for read-only execution. It rejects
// statement terminators and embedded DML/DDL keywords outside string
// literals and comments, then confirms against the PostgreSQL grammar that
// the statement is a single SELECT/EXPLAIN/SHOW.
func (v *Validator) CheckReadOnly(sql string) error {
	stripped := stripLiteralsAndComments(sql)

	// A single trailing terminator is harmless and common; any other
	// semicolon means a second statement is being smuggled in.
	trimmed := strings.TrimSuffix(strings.TrimRight(stripped, " \t\n\r"), ";")
	if strings.ContainsRune(trimmed, ';') {
		return &Violation{Kind: KindForbiddenKeyword, Detail: "statement terminator is not allowed inside a read-only query"}
	}

	for _, kw := range forbiddenKeywords {
		if containsWord(stripped, kw) {
			return &Violation{Kind: KindForbiddenKeyword, Detail: fmt.Sprintf("forbidden keyword %s in read-only query", kw)}
		}
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return &Violation{Kind: KindMalformed, Detail: fmt.Sprintf("SQL parse error: %v", err)}
	}
	if len(result.Stmts) == 0 {
		return &Violation{Kind: KindMalformed, Detail: "empty query"}
	}
	if len(result.Stmts) > 1 {
		return &Violation{Kind: KindForbiddenKeyword, Detail: fmt.Sprintf("multi-statement queries are not allowed: found %d statements", len(result.Stmts))}
	}

	switch n := result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		// SELECT INTO creates the target table and copies rows into it.
		if selectHasInto(n.SelectStmt) {
			return &Violation{Kind: KindForbiddenKeyword, Detail: "SELECT INTO writes to a new table and is not allowed in read-only queries"}
		}
		return nil
	case *pg_query.Node_ExplainStmt:
		if inner, ok := n.ExplainStmt.Query.GetNode().(*pg_query.Node_SelectStmt); ok && selectHasInto(inner.SelectStmt) {
			return &Violation{Kind: KindForbiddenKeyword, Detail: "SELECT INTO writes to a new table and is not allowed in read-only queries"}
		}
		return nil
	case *pg_query.Node_VariableShowStmt:
		return nil
	default:
		return &Violation{Kind: KindForbiddenKeyword, Detail: "only SELECT, WITH, EXPLAIN, and SHOW statements are allowed in read-only queries"}
	}
}

// selectHasInto reports whether a SELECT carries an INTO clause, looking
// through set-operation arms where the grammar attaches it to the first
// leaf.
func selectHasInto(sel *pg_query.SelectStmt) bool {
	if sel == nil {
		return false
	}
	return sel.IntoClause != nil || selectHasInto(sel.Larg) || selectHasInto(sel.Rarg)
}

// CheckModification validates SQL intended for DML/DDL execution. It
// rejects destructive statement classes unconditionally and any statement
// whose target table is in the protected set. SELECTs are redirected by
// the caller before this check runs.
func (v *Validator) CheckModification(sql string) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return &Violation{Kind: KindMalformed, Detail: fmt.Sprintf("SQL parse error: %v", err)}
	}
	if len(result.Stmts) == 0 {
		return &Violation{Kind: KindMalformed, Detail: "empty query"}
	}
	if len(result.Stmts) > 1 {
		return &Violation{Kind: KindMalformed, Detail: fmt.Sprintf("multi-statement queries are not allowed: found %d statements", len(result.Stmts))}
	}

	for _, rawStmt := range result.Stmts {
		if err := v.checkNode(rawStmt.Stmt); err != nil {
			return err
		}
	}
	return nil
}

// checkNode recursively checks one AST node and its CTE subqueries.
func (v *Validator) checkNode(node *pg_query.Node) error {
	if node == nil {
		return nil
	}

	if err := v.checkCTEs(node); err != nil {
		return err
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_DropdbStmt:
		return &Violation{Kind: KindForbiddenStatementClass, Detail: "DROP DATABASE is never allowed"}

	case *pg_query.Node_DropTableSpaceStmt:
		return &Violation{Kind: KindForbiddenStatementClass, Detail: "DROP TABLESPACE is never allowed"}

	case *pg_query.Node_AlterSystemStmt:
		return &Violation{Kind: KindForbiddenStatementClass, Detail: "ALTER SYSTEM is never allowed"}

	case *pg_query.Node_DropStmt:
		if n.DropStmt.RemoveType == pg_query.ObjectType_OBJECT_SCHEMA {
			return &Violation{Kind: KindForbiddenStatementClass, Detail: "DROP SCHEMA is never allowed"}
		}
		if n.DropStmt.RemoveType == pg_query.ObjectType_OBJECT_TABLE {
			for _, obj := range n.DropStmt.Objects {
				if name := lastNamePart(obj); name != "" {
					if err := v.checkProtected(name); err != nil {
						return err
					}
				}
			}
		}

	case *pg_query.Node_InsertStmt:
		return v.checkRelation(n.InsertStmt.Relation)

	case *pg_query.Node_UpdateStmt:
		return v.checkRelation(n.UpdateStmt.Relation)

	case *pg_query.Node_DeleteStmt:
		return v.checkRelation(n.DeleteStmt.Relation)

	case *pg_query.Node_MergeStmt:
		return v.checkRelation(n.MergeStmt.Relation)

	case *pg_query.Node_TruncateStmt:
		for _, rel := range n.TruncateStmt.Relations {
			if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
				if err := v.checkRelation(rv.RangeVar); err != nil {
					return err
				}
			}
		}

	case *pg_query.Node_AlterTableStmt:
		return v.checkRelation(n.AlterTableStmt.Relation)

	case *pg_query.Node_RenameStmt:
		return v.checkRelation(n.RenameStmt.Relation)
	}
	return nil
}

// checkCTEs recursively checks WITH-clause subqueries, catching
// data-modifying CTEs that target protected tables.
func (v *Validator) checkCTEs(node *pg_query.Node) error {
	var withClause *pg_query.WithClause
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		withClause = n.SelectStmt.WithClause
	case *pg_query.Node_InsertStmt:
		withClause = n.InsertStmt.WithClause
	case *pg_query.Node_UpdateStmt:
		withClause = n.UpdateStmt.WithClause
	case *pg_query.Node_DeleteStmt:
		withClause = n.DeleteStmt.WithClause
	case *pg_query.Node_MergeStmt:
		withClause = n.MergeStmt.WithClause
	}
	if withClause == nil {
		return nil
	}
	for _, cte := range withClause.Ctes {
		cteNode, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
		if !ok {
			continue
		}
		if err := v.checkNode(cteNode.CommonTableExpr.Ctequery); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkRelation(rel *pg_query.RangeVar) error {
	if rel == nil {
		return nil
	}
	return v.checkProtected(rel.Relname)
}

func (v *Validator) checkProtected(name string) error {
	if _, ok := v.protected[strings.ToLower(bareName(name))]; ok {
		return &Violation{Kind: KindProtectedTable, Detail: fmt.Sprintf("table %q is protected and cannot be modified", name)}
	}
	return nil
}

// lastNamePart extracts the final name component from a DROP object node,
// which pg_query represents as a list of String nodes.
func lastNamePart(obj *pg_query.Node) string {
	list, ok := obj.Node.(*pg_query.Node_List)
	if !ok {
		return ""
	}
	items := list.List.Items
	if len(items) == 0 {
		return ""
	}
	s, ok := items[len(items)-1].Node.(*pg_query.Node_String_)
	if !ok {
		return ""
	}
	return s.String_.Sval
}

func bareName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// containsWord reports whether kw appears in s as a whole word,
// case-insensitively. s must already have literals and comments stripped.
func containsWord(s, kw string) bool {
	upper := strings.ToUpper(s)
	for start := 0; ; {
		idx := strings.Index(upper[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		before := idx == 0 || !isWordByte(upper[idx-1])
		afterIdx := idx + len(kw)
		after := afterIdx >= len(upper) || !isWordByte(upper[afterIdx])
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || b == '#' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// stripLiteralsAndComments replaces string literals, quoted identifiers,
// dollar-quoted strings, and comments with spaces so keyword scanning
// cannot be fooled by quoted content. Handles standard '' escapes,
// E'\' escapes, and nested block comments per the PostgreSQL lexer.
func stripLiteralsAndComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'':
			escape := i > 0 && (sql[i-1] == 'e' || sql[i-1] == 'E')
			i++
			for i < n {
				if escape && sql[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			b.WriteByte(' ')

		case c == '"':
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			b.WriteByte(' ')

		case c == '$':
			tag, tagLen := dollarTag(sql[i:])
			if tagLen == 0 {
				b.WriteByte(c)
				i++
				break
			}
			end := strings.Index(sql[i+tagLen:], tag)
			if end < 0 {
				i = n
			} else {
				i += tagLen + end + len(tag)
			}
			b.WriteByte(' ')

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')

		case c == '/' && i+1 < n && sql[i+1] == '*':
			depth := 1
			i += 2
			for i < n && depth > 0 {
				if sql[i] == '/' && i+1 < n && sql[i+1] == '*' {
					depth++
					i += 2
				} else if sql[i] == '*' && i+1 < n && sql[i+1] == '/' {
					depth--
					i += 2
				} else {
					i++
				}
			}
			b.WriteByte(' ')

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// dollarTag returns the full $tag$ delimiter at the start of s, or 0 if s
// does not start a valid dollar quote.
func dollarTag(s string) (string, int) {
	if len(s) < 2 || s[0] != '$' {
		return "", 0
	}
	for j := 1; j < len(s); j++ {
		if s[j] == '$' {
			return s[:j+1], j + 1
		}
		if !isWordByte(s[j]) || (s[j] >= '0' && s[j] <= '9' && j == 1) {
			return "", 0
		}
	}
	return "", 0
}
