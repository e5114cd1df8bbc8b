// Package lang compiles markup templates into executable code.
//
// A template is markup with attribute directives and "${...}" interpolation.
// Expressions are expr-lang expressions. Directives in the tal: namespace
// control content and flow, and directives in the metal: namespace define
// and use macros.
//
// # Example
//
//	<ul tal:condition="people">
//	  <li tal:repeat="p people"
//	      tal:attributes="class repeat.p.odd ? 'odd' : 'even'">
//	    ${p.name} (${repeat.p.number} of ${repeat.p.length})
//	  </li>
//	</ul>
//	<p tal:replace="structure footer">footer</p>
//
// # Directives
//
// Directives on one element apply in this order:
//
//  1. tal:define="name expr; ..."
//  2. tal:condition="expr"
//  3. tal:repeat="name expr"
//  4. tal:content="[structure|text] expr" or tal:replace="..."
//  5. tal:attributes="name expr; ..."
//  6. tal:omit-tag="[expr]"
//
// Elements named tal:* or metal:* never emit their own tags.
//
// # Pipeline
//
// [Generator.Generate] parses a template, checks that every name used by
// an expression is declared, and lowers the result to [Code], a tree of
// instructions serialized as YAML. The [Key] of the result digests the
// template together with its [GlobalsTypes] and modules.
//
// [Compiler.Compile] type-checks every expression against the declared
// globals and links the code into a [CompiledTemplate]. The template's
// [CompiledTemplate.Artifact] is restored with [Compiler.Load].
//
// [CompiledTemplate.Execute] renders the template with concrete values.
package lang
