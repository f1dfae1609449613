// Package merge implementa o merge profundo de árvores de estado JSON.
//
// É a primitiva de correção mais importante do hub: payloads de hand-off
// carregam snapshots parciais de estado (sub-objetos aninhados) que precisam
// ser combinados com o estado do receptor SEM clobber dos campos irmãos que
// o emissor nunca tocou. Um spread raso perde estrutura aninhada; este merge
// preserva até uma profundidade limitada.
//
// Regras, em ordem de prioridade, por chave de source:
//  1. Valor nil → o resultado fica nil (limpeza deliberada de campo;
//     diferente de "chave ausente", que deixa target intocado)
//  2. Array → substitui por inteiro (arrays nunca são merged elemento a elemento)
//  3. Ambos objetos → recursão com profundidade+1
//  4. Source objeto, target não-objeto (ou ausente) → substitui por inteiro
//  5. Primitivo → substitui
//
// Guardas estruturais (degradam silenciosamente, nunca lançam erro):
//   - profundidade >= máxima → spread raso naquele nível
//   - referência de source já vista no caminho atual → devolve target
//     intacto naquele nó (defesa contra grafos cíclicos)
package merge

import "reflect"

// Maps nunca são mutados: o resultado é sempre um mapa novo no topo de cada
// nível visitado. Sub-árvores não tocadas são compartilhadas por referência.

// Merge combina source sobre target até maxDepth níveis de recursão.
func Merge(target, source map[string]any, maxDepth int) map[string]any {
	return mergeAt(target, source, maxDepth, 0, map[uintptr]struct{}{})
}

func mergeAt(target, source map[string]any, maxDepth, depth int, visited map[uintptr]struct{}) map[string]any {
	if source == nil {
		return shallowCopy(target)
	}

	// Identidade por referência do mapa, não por valor — é assim que um
	// ciclo (objeto que referencia a si mesmo) é detectado.
	id := reflect.ValueOf(source).Pointer()
	if _, seen := visited[id]; seen {
		return shallowCopy(target)
	}
	visited[id] = struct{}{}
	defer delete(visited, id)

	out := shallowCopy(target)

	// Teto de profundidade: spread raso neste nível.
	if depth >= maxDepth {
		for k, v := range source {
			out[k] = v
		}
		return out
	}

	for k, v := range source {
		switch sv := v.(type) {
		case nil:
			out[k] = nil
		case []any:
			out[k] = sv
		case map[string]any:
			if tv, ok := out[k].(map[string]any); ok {
				out[k] = mergeAt(tv, sv, maxDepth, depth+1, visited)
			} else {
				// target não tem objeto aqui — nada para combinar
				out[k] = sv
			}
		default:
			out[k] = sv
		}
	}
	return out
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
