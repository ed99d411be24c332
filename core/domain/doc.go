// Package domain define contratos e tipos de domínio do core: rate limit,
// pool de execução bloqueante, itens expiráveis e tradução.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
