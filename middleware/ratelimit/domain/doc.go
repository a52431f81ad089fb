// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Políticas, decisões e o contrato do Counter Store vivem aqui para que
// a camada application possa ser testada com fakes puros.
package domain
